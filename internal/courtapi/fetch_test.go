package courtapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPacer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *countingPacer) Pause(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
	return nil
}

type item struct {
	ID int `json:"id"`
}

func newFetcher(t *testing.T, srv *httptest.Server, pacer courtapi.Pacer) *courtapi.Fetcher {
	t.Helper()
	court := domain.CourtConfig{Code: "TRT15", BaseURL: srv.URL}
	return courtapi.NewFetcher(srv.Client(), court, courtapi.FetcherConfig{
		PageSize:       2,
		InterPageDelay: 500 * time.Millisecond,
		Pacer:          pacer,
	})
}

func TestFetchAllPages_ConcatenatesPagesInOrder(t *testing.T) {
	pages := map[int][]item{
		1: {{ID: 1}, {ID: 2}},
		2: {{ID: 3}, {ID: 4}},
		3: {{ID: 5}},
	}
	var seen []url.Values
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query())
		mu.Unlock()
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagina":         page,
			"tamanhoPagina":  2,
			"qtdPaginas":     3,
			"totalRegistros": 5,
			"resultado":      pages[page],
		})
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	f := newFetcher(t, srv, pacer)

	got, err := courtapi.FetchAllPages[item](context.Background(), f, courtapi.Request{
		Endpoint: "/api/processos",
		Params:   url.Values{"search": {"acme"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []item{{1}, {2}, {3}, {4}, {5}}, got)

	assert.Len(t, pacer.delays, 2)
	for _, d := range pacer.delays {
		assert.Equal(t, 500*time.Millisecond, d)
	}

	require.Len(t, seen, 3)
	for i, q := range seen {
		assert.Equal(t, strconv.Itoa(i+1), q.Get("pagina"))
		assert.Equal(t, "2", q.Get("tamanhoPagina"))
		assert.Equal(t, "true", q.Get("ordenacaoCrescente"))
		assert.Equal(t, "acme", q.Get("search"))
	}
}

func TestNewFetcher_CourtDelayOverridesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagina": page, "qtdPaginas": 3, "totalRegistros": 3,
			"resultado": []item{{ID: page}},
		})
	}))
	defer srv.Close()

	zero, slow := time.Duration(0), 2*time.Second
	tests := []struct {
		name  string
		court *time.Duration
		want  time.Duration
	}{
		{name: "unset uses default", court: nil, want: 500 * time.Millisecond},
		{name: "explicit zero disables pause", court: &zero, want: 0},
		{name: "explicit value wins", court: &slow, want: 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pacer := &countingPacer{}
			court := domain.CourtConfig{Code: "TRT15", BaseURL: srv.URL, InterPageDelay: tt.court}
			f := courtapi.NewFetcher(srv.Client(), court, courtapi.FetcherConfig{
				InterPageDelay: 500 * time.Millisecond,
				Pacer:          pacer,
			})

			_, err := courtapi.FetchAllPages[item](context.Background(), f, courtapi.Request{Endpoint: "/api/partes"})
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.want, tt.want}, pacer.delays)
		})
	}
}

func TestFetchAllPages_ZeroResultsWithoutItemsField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"pagina":1,"tamanhoPagina":100,"qtdPaginas":0,"totalRegistros":0}`)
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	got, err := courtapi.FetchAllPages[item](context.Background(), newFetcher(t, srv, pacer), courtapi.Request{Endpoint: "/api/pautas"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, pacer.delays)
}

func TestFetchAllPages_SinglePageSkipsPacer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"pagina":1,"tamanhoPagina":100,"qtdPaginas":1,"totalRegistros":1,"resultado":[{"id":7}]}`)
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	got, err := courtapi.FetchAllPages[item](context.Background(), newFetcher(t, srv, pacer), courtapi.Request{Endpoint: "/api/partes"})
	require.NoError(t, err)
	assert.Equal(t, []item{{7}}, got)
	assert.Empty(t, pacer.delays)
}

func TestFetchAllPages_MalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "1" {
			_, _ = fmt.Fprint(w, `{"pagina":1,"qtdPaginas":2,"totalRegistros":3,"resultado":[{"id":1},{"id":2}]}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"pagina":2,"qtdPaginas":2,"totalRegistros":3,"mensagem":"sessao expirada"}`)
	}))
	defer srv.Close()

	_, err := courtapi.FetchAllPages[item](context.Background(), newFetcher(t, srv, &countingPacer{}), courtapi.Request{Endpoint: "/api/expedientes"})
	require.Error(t, err)

	var malformed *domain.MalformedPageResponse
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 2, malformed.PageIndex)
	assert.Contains(t, string(malformed.RawPayload), "sessao expirada")
}

func TestFetchAllPages_ItemsNotAnArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"pagina":1,"qtdPaginas":1,"totalRegistros":1,"resultado":{"id":1}}`)
	}))
	defer srv.Close()

	_, err := courtapi.FetchAllPages[item](context.Background(), newFetcher(t, srv, &countingPacer{}), courtapi.Request{Endpoint: "/api/processos"})
	var malformed *domain.MalformedPageResponse
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.PageIndex)
}

func TestFetchAllPages_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		sessionLost bool
	}{
		{"server error", http.StatusBadGateway, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := courtapi.FetchAllPages[item](context.Background(), newFetcher(t, srv, &countingPacer{}), courtapi.Request{Endpoint: "/api/processos"})
			var transient *domain.TransientNetworkError
			require.ErrorAs(t, err, &transient)
			assert.Equal(t, tt.status, transient.StatusCode)
			assert.Equal(t, tt.sessionLost, transient.SessionLost)
		})
	}
}

func TestTimerPacer_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := courtapi.TimerPacer{}.Pause(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterPool_SharesPerCourt(t *testing.T) {
	pool := courtapi.NewLimiterPool()

	assert.Nil(t, pool.For(domain.CourtConfig{Code: "TRT2"}))

	a := pool.For(domain.CourtConfig{Code: "TRT2", RequestsPerSecond: 2})
	b := pool.For(domain.CourtConfig{Code: "trt2", RequestsPerSecond: 2})
	c := pool.For(domain.CourtConfig{Code: "TRT3", RequestsPerSecond: 2})
	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
