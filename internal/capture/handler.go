// Package capture maps each capture kind to the court endpoint it reads and
// runs one fetch+persist cycle per sub-filter.
package capture

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/domain"
)

// Unit is one isolated fetch+persist cycle. Filter is empty for kinds that
// have no sub-filters.
type Unit struct {
	Filter  string
	Request courtapi.Request
}

// Handler knows the endpoint, defaults and sub-filters of one capture kind.
type Handler interface {
	Type() domain.CaptureType
	// Plan applies defaults to params and returns the units to run, in order.
	// today is the run day in the schedule location.
	Plan(params domain.CaptureParams, today domain.Date) ([]Unit, error)
}

// Registry holds one handler per capture kind.
type Registry struct {
	handlers map[domain.CaptureType]Handler
}

// NewRegistry returns a registry with every built-in kind.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[domain.CaptureType]Handler)}
	for _, h := range []Handler{
		generalDocketHandler{},
		archivedHandler{},
		hearingsHandler{},
		pendingFilingsHandler{},
		partiesHandler{},
		timelineHandler{},
	} {
		r.handlers[h.Type()] = h
	}
	return r
}

func (r *Registry) Get(t domain.CaptureType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, domain.ErrUnknownCapture
	}
	return h, nil
}

// Plan looks up the handler for params' kind and plans its units. A nil params
// value plans the kind's defaults.
func (r *Registry) Plan(t domain.CaptureType, params domain.CaptureParams, today domain.Date) ([]Unit, error) {
	h, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	if params != nil && params.CaptureType() != t {
		return nil, &domain.ValidationError{Field: "params", Reason: fmt.Sprintf("params for %s given to %s capture", params.CaptureType(), t)}
	}
	return h.Plan(params, today)
}

// Filters returns the sub-filter names of a plan, in order.
func Filters(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Filter
	}
	return out
}

type generalDocketHandler struct{}

func (generalDocketHandler) Type() domain.CaptureType { return domain.CaptureGeneralDocket }

func (generalDocketHandler) Plan(params domain.CaptureParams, _ domain.Date) ([]Unit, error) {
	p, _ := params.(domain.GeneralDocketParams)
	q := url.Values{}
	if p.Search != "" {
		q.Set("termo", p.Search)
	}
	return []Unit{{Request: courtapi.Request{Endpoint: "/api/processos", Params: q, Kind: string(domain.CaptureGeneralDocket)}}}, nil
}

type archivedHandler struct{}

func (archivedHandler) Type() domain.CaptureType { return domain.CaptureArchived }

func (archivedHandler) Plan(params domain.CaptureParams, _ domain.Date) ([]Unit, error) {
	p, _ := params.(domain.ArchivedParams)
	q := url.Values{}
	if p.Since != nil {
		q.Set("dataArquivamentoInicio", p.Since.String())
	}
	return []Unit{{Request: courtapi.Request{Endpoint: "/api/processos/arquivados", Params: q, Kind: string(domain.CaptureArchived)}}}, nil
}

const (
	defaultHearingWindowDays = 365
	defaultHearingStatus     = "scheduled"
)

type hearingsHandler struct{}

func (hearingsHandler) Type() domain.CaptureType { return domain.CaptureHearings }

// Plan defaults the window to [today, today+365d] and the status to
// "scheduled". WindowDays, when set, anchors the window on today; params
// validation keeps it exclusive with explicit dates.
func (hearingsHandler) Plan(params domain.CaptureParams, today domain.Date) ([]Unit, error) {
	p, _ := params.(domain.HearingsParams)

	start, end := p.Start, p.End
	if p.WindowDays > 0 {
		s := today
		e := domain.NewDate(today.AddDate(0, 0, p.WindowDays))
		start, end = &s, &e
	}
	if start == nil {
		s := today
		start = &s
	}
	if end == nil {
		e := domain.NewDate(start.AddDate(0, 0, defaultHearingWindowDays))
		end = &e
	}
	if end.Before(start.Time) {
		return nil, &domain.ValidationError{Field: "params.end", Reason: "must not be before start"}
	}

	status := p.Status
	if status == "" {
		status = defaultHearingStatus
	}

	q := url.Values{}
	q.Set("dataInicio", start.String())
	q.Set("dataFim", end.String())
	q.Set("status", status)
	return []Unit{{Request: courtapi.Request{Endpoint: "/api/pautas", Params: q, Kind: string(domain.CaptureHearings)}}}, nil
}

type pendingFilingsHandler struct{}

func (pendingFilingsHandler) Type() domain.CaptureType { return domain.CapturePendingFilings }

var pendingFilterQuery = map[domain.PendingFilter]string{
	domain.FilterNoDeadline:     "SEM_PRAZO",
	domain.FilterWithinDeadline: "NO_PRAZO",
}

// Plan returns one unit per sub-filter; no filters means no-deadline.
func (pendingFilingsHandler) Plan(params domain.CaptureParams, _ domain.Date) ([]Unit, error) {
	p, _ := params.(domain.PendingFilingsParams)
	filters := p.Filters
	if len(filters) == 0 {
		filters = []domain.PendingFilter{domain.FilterNoDeadline}
	}

	units := make([]Unit, 0, len(filters))
	for _, f := range filters {
		code, ok := pendingFilterQuery[f]
		if !ok {
			return nil, &domain.ValidationError{Field: "params.filters", Reason: fmt.Sprintf("unknown filter %q", f)}
		}
		units = append(units, Unit{
			Filter: string(f),
			Request: courtapi.Request{
				Endpoint: "/api/expedientes",
				Params:   url.Values{"prazo": {code}},
				Kind:     string(domain.CapturePendingFilings),
			},
		})
	}
	return units, nil
}

type partiesHandler struct{}

func (partiesHandler) Type() domain.CaptureType { return domain.CaptureParties }

func (partiesHandler) Plan(params domain.CaptureParams, _ domain.Date) ([]Unit, error) {
	p, _ := params.(domain.PartiesParams)
	q := url.Values{}
	switch p.Role {
	case "active":
		q.Set("polo", "ATIVO")
	case "passive":
		q.Set("polo", "PASSIVO")
	}
	return []Unit{{Request: courtapi.Request{Endpoint: "/api/partes", Params: q, Kind: string(domain.CaptureParties)}}}, nil
}

type timelineHandler struct{}

func (timelineHandler) Type() domain.CaptureType { return domain.CaptureTimeline }

func (timelineHandler) Plan(params domain.CaptureParams, _ domain.Date) ([]Unit, error) {
	p, _ := params.(domain.TimelineParams)
	if p.ProcessID == "" {
		return nil, &domain.ValidationError{Field: "params.process_id", Reason: "required"}
	}
	return []Unit{{
		Request: courtapi.Request{
			Endpoint: "/api/processos/" + url.PathEscape(p.ProcessID) + "/timeline",
			Kind:     string(domain.CaptureTimeline),
		},
	}}, nil
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) domain.Date {
	if loc != nil {
		now = now.In(loc)
	}
	return domain.NewDate(now)
}
