// Package courts loads the catalog of court instances the engine can reach.
package courts

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"gopkg.in/yaml.v3"
)

const defaultInterPageDelay = 500 * time.Millisecond

type file struct {
	Courts []courtEntry `yaml:"courts"`
}

type courtEntry struct {
	Code              string            `yaml:"code"`
	Name              string            `yaml:"name"`
	Instances         map[string]string `yaml:"instances"`
	InterPageDelayMS  *int              `yaml:"inter_page_delay_ms"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
}

// Catalog resolves a credential's court code and instance to its endpoint
// configuration.
type Catalog struct {
	entries map[string]map[domain.InstanceLevel]domain.CourtConfig
}

// Load reads and validates a YAML catalog. defaultDelay applies to courts
// that do not set inter_page_delay_ms; zero means 500ms.
func Load(path string, defaultDelay time.Duration) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read courts file: %w", err)
	}
	return Parse(b, defaultDelay)
}

func Parse(b []byte, defaultDelay time.Duration) (*Catalog, error) {
	if defaultDelay <= 0 {
		defaultDelay = defaultInterPageDelay
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse courts file: %w", err)
	}

	c := &Catalog{entries: make(map[string]map[domain.InstanceLevel]domain.CourtConfig)}
	for i, e := range f.Courts {
		if err := validate(e); err != nil {
			return nil, fmt.Errorf("court #%d: %w", i+1, err)
		}
		code := strings.ToUpper(e.Code)
		if _, dup := c.entries[code]; dup {
			return nil, fmt.Errorf("court %s: declared twice", code)
		}

		delay := defaultDelay
		if e.InterPageDelayMS != nil {
			delay = time.Duration(*e.InterPageDelayMS) * time.Millisecond
		}
		number, _ := domain.CourtNumber(code)

		levels := make(map[domain.InstanceLevel]domain.CourtConfig, len(e.Instances))
		for level, base := range e.Instances {
			lvl := domain.InstanceLevel(level)
			levels[lvl] = domain.CourtConfig{
				Code:              code,
				Number:            number,
				Name:              e.Name,
				InstanceLevel:     lvl,
				BaseURL:           strings.TrimRight(base, "/"),
				RequestsPerSecond: e.RequestsPerSecond,
				InterPageDelay:    &delay,
			}
		}
		c.entries[code] = levels
	}
	return c, nil
}

func validate(e courtEntry) error {
	if e.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(e.Instances) == 0 {
		return fmt.Errorf("%s: at least one instance is required", e.Code)
	}
	for level, base := range e.Instances {
		if !domain.InstanceLevel(level).Valid() {
			return fmt.Errorf("%s: unknown instance level %q", e.Code, level)
		}
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %s: invalid base url %q", e.Code, level, base)
		}
	}
	if e.InterPageDelayMS != nil && *e.InterPageDelayMS < 0 {
		return fmt.Errorf("%s: inter_page_delay_ms must not be negative", e.Code)
	}
	if e.RequestsPerSecond < 0 {
		return fmt.Errorf("%s: requests_per_second must not be negative", e.Code)
	}
	return nil
}

// Resolve returns the configuration for the credential's court instance or a
// *domain.NotFoundError.
func (c *Catalog) Resolve(cred domain.CredentialDescriptor) (domain.CourtConfig, error) {
	code := strings.ToUpper(cred.CourtCode)
	levels, ok := c.entries[code]
	if !ok {
		return domain.CourtConfig{}, &domain.NotFoundError{Resource: "court", ID: cred.CourtCode}
	}
	cfg, ok := levels[cred.InstanceLevel]
	if !ok {
		return domain.CourtConfig{}, &domain.NotFoundError{Resource: "court instance", ID: code + " " + string(cred.InstanceLevel)}
	}
	return cfg, nil
}

// Len reports how many courts are configured.
func (c *Catalog) Len() int { return len(c.entries) }
