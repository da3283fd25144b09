// Package courtapi talks to the paginated JSON API exposed by court portals.
package courtapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize       = 100
	DefaultInterPageDelay = 500 * time.Millisecond

	// upper bound on a single page body
	maxPageBytes = 32 << 20
)

// PagedResult is one decoded page.
type PagedResult[T any] struct {
	Page       int
	PageSize   int
	PageCount  int
	TotalCount int
	Items      []T
}

type envelope struct {
	Page       int             `json:"pagina"`
	PageSize   int             `json:"tamanhoPagina"`
	PageCount  int             `json:"qtdPaginas"`
	TotalCount int             `json:"totalRegistros"`
	Items      json.RawMessage `json:"resultado"`
}

// Request describes one paginated endpoint call.
type Request struct {
	Endpoint string
	Params   url.Values
	// Descending flips the API's default ascending order.
	Descending bool
	// Kind labels page metrics.
	Kind string
}

type FetcherConfig struct {
	PageSize       int
	InterPageDelay time.Duration
	Pacer          Pacer
	// Limiter is waited on before every request; nil disables it.
	Limiter *rate.Limiter
}

// Fetcher issues page requests for one court session.
type Fetcher struct {
	session  Session
	baseURL  string
	court    string
	pageSize int
	delay    time.Duration
	pacer    Pacer
	limiter  *rate.Limiter
}

func NewFetcher(session Session, court domain.CourtConfig, cfg FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Pacer == nil {
		cfg.Pacer = TimerPacer{}
	}
	delay := cfg.InterPageDelay
	if court.InterPageDelay != nil {
		delay = *court.InterPageDelay
	}
	return &Fetcher{
		session:  session,
		baseURL:  court.BaseURL,
		court:    court.Code,
		pageSize: cfg.PageSize,
		delay:    delay,
		pacer:    cfg.Pacer,
		limiter:  cfg.Limiter,
	}
}

// FetchAllPages returns every item of a paginated endpoint, in API order.
// Pages are fetched one at a time with a pause before each page after the
// first. A zero total (or zero page count) short-circuits to an empty slice
// even when the items field is absent. Any page without a well-formed items
// array fails the whole call with *domain.MalformedPageResponse.
func FetchAllPages[T any](ctx context.Context, f *Fetcher, req Request) ([]T, error) {
	first, err := fetchPage[T](ctx, f, req, 1)
	if err != nil {
		return nil, err
	}
	if first.TotalCount == 0 || first.PageCount == 0 {
		return []T{}, nil
	}

	items := make([]T, 0, min(first.TotalCount, 10*f.pageSize))
	items = append(items, first.Items...)
	if first.PageCount <= 1 {
		return items, nil
	}

	for page := 2; page <= first.PageCount; page++ {
		if err := f.pacer.Pause(ctx, f.delay); err != nil {
			return nil, fmt.Errorf("pause before page %d: %w", page, err)
		}
		next, err := fetchPage[T](ctx, f, req, page)
		if err != nil {
			return nil, err
		}
		items = append(items, next.Items...)
	}
	return items, nil
}

func fetchPage[T any](ctx context.Context, f *Fetcher, req Request, page int) (*PagedResult[T], error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &domain.TransientNetworkError{Op: "rate limit " + f.court, Err: err}
		}
	}

	q := url.Values{}
	for k, v := range req.Params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("pagina", strconv.Itoa(page))
	q.Set("tamanhoPagina", strconv.Itoa(f.pageSize))
	q.Set("ordenacaoCrescente", strconv.FormatBool(!req.Descending))

	op := "GET " + req.Endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+req.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.session.Do(httpReq)
	if err != nil {
		metrics.CourtRequestsTotal.WithLabelValues(f.court, "transport_error").Inc()
		return nil, &domain.TransientNetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		metrics.CourtRequestsTotal.WithLabelValues(f.court, "transport_error").Inc()
		return nil, &domain.TransientNetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.CourtRequestsTotal.WithLabelValues(f.court, "http_"+strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &domain.TransientNetworkError{
			Op:          op,
			StatusCode:  resp.StatusCode,
			SessionLost: resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		}
	}
	metrics.CourtRequestsTotal.WithLabelValues(f.court, "ok").Inc()
	metrics.PagesFetchedTotal.WithLabelValues(req.Kind).Inc()

	return decodePage[T](page, body)
}

func decodePage[T any](page int, body []byte) (*PagedResult[T], error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &domain.MalformedPageResponse{PageIndex: page, RawPayload: body}
	}

	result := &PagedResult[T]{
		Page:       env.Page,
		PageSize:   env.PageSize,
		PageCount:  env.PageCount,
		TotalCount: env.TotalCount,
	}

	raw := bytes.TrimSpace(env.Items)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		// The API omits the items field on empty result sets.
		if env.TotalCount == 0 || env.PageCount == 0 {
			result.Items = []T{}
			return result, nil
		}
		return nil, &domain.MalformedPageResponse{PageIndex: page, RawPayload: body}
	}
	if raw[0] != '[' {
		return nil, &domain.MalformedPageResponse{PageIndex: page, RawPayload: body}
	}
	if err := json.Unmarshal(raw, &result.Items); err != nil {
		return nil, &domain.MalformedPageResponse{PageIndex: page, RawPayload: body}
	}
	return result, nil
}
