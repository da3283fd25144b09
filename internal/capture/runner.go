package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
)

// Persister stores captured items. Implementations must upsert by
// (OwnerID, CaptureType, ExternalID) so re-running a capture is harmless.
type Persister interface {
	Persist(ctx context.Context, records []domain.CapturedRecord) (domain.PersistSummary, error)
}

// Result is what one unit produced. It is returned alongside a persist error
// so the raw payload still reaches the attempt record.
type Result struct {
	Items      []json.RawMessage
	RawPayload []byte
	Summary    domain.PersistSummary
	Logs       []string
}

// Target is who a unit runs as.
type Target struct {
	OwnerID     string
	CaptureType domain.CaptureType
	Credential  domain.CredentialDescriptor
	Court       domain.CourtConfig
	Session     courtapi.Session
}

// Runner executes planned units against a court session.
type Runner struct {
	persister Persister
	limiters  *courtapi.LimiterPool
	fetchCfg  courtapi.FetcherConfig
	now       func() time.Time
}

func NewRunner(persister Persister, limiters *courtapi.LimiterPool, fetchCfg courtapi.FetcherConfig) *Runner {
	if limiters == nil {
		limiters = courtapi.NewLimiterPool()
	}
	return &Runner{
		persister: persister,
		limiters:  limiters,
		fetchCfg:  fetchCfg,
		now:       time.Now,
	}
}

// Run fetches every page of the unit's endpoint and hands the items to the
// persister.
func (r *Runner) Run(ctx context.Context, target Target, unit Unit) (*Result, error) {
	cfg := r.fetchCfg
	cfg.Limiter = r.limiters.For(target.Court)
	fetcher := courtapi.NewFetcher(target.Session, target.Court, cfg)

	items, err := courtapi.FetchAllPages[json.RawMessage](ctx, fetcher, unit.Request)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}
	res := &Result{
		Items:      items,
		RawPayload: raw,
		Logs:       []string{fmt.Sprintf("fetched %d items from %s", len(items), unit.Request.Endpoint)},
	}
	metrics.ItemsCapturedTotal.WithLabelValues(string(target.CaptureType)).Add(float64(len(items)))

	now := r.now().UTC()
	records := make([]domain.CapturedRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		id, ok := ExternalID(item)
		if !ok {
			skipped++
			continue
		}
		records = append(records, domain.CapturedRecord{
			OwnerID:      target.OwnerID,
			CaptureType:  target.CaptureType,
			ExternalID:   id,
			CredentialID: target.Credential.ID,
			Payload:      item,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		})
	}

	var summary domain.PersistSummary
	if len(records) > 0 {
		summary, err = r.persister.Persist(ctx, records)
		if err != nil {
			res.Logs = append(res.Logs, "persist failed: "+err.Error())
			return res, fmt.Errorf("persist items: %w", err)
		}
	}
	summary.Received = len(items)
	summary.Skipped += skipped
	res.Summary = summary
	res.Logs = append(res.Logs, fmt.Sprintf("persisted %d (unchanged %d, skipped %d)", summary.Upserted, summary.Unchanged, summary.Skipped))
	return res, nil
}

// ExternalID reads the item's "id" field, string or number.
func ExternalID(item json.RawMessage) (string, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(probe.ID)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return n.String(), true
	default:
		return "", false
	}
}
