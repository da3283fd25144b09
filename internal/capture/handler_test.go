package capture_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = domain.NewDate(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

func date(s string) *domain.Date {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	d := domain.NewDate(t)
	return &d
}

func TestRegistry_HasEveryKind(t *testing.T) {
	r := capture.NewRegistry()
	for _, ct := range domain.CaptureTypes {
		h, err := r.Get(ct)
		require.NoError(t, err, ct)
		assert.Equal(t, ct, h.Type())
	}
	_, err := r.Get("sentences")
	assert.ErrorIs(t, err, domain.ErrUnknownCapture)
}

func TestHearingsPlan_Defaults(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CaptureHearings, domain.HearingsParams{}, today)
	require.NoError(t, err)
	require.Len(t, units, 1)

	q := units[0].Request.Params
	assert.Equal(t, "/api/pautas", units[0].Request.Endpoint)
	assert.Equal(t, "2024-03-10", q.Get("dataInicio"))
	assert.Equal(t, "2025-03-10", q.Get("dataFim"))
	assert.Equal(t, "scheduled", q.Get("status"))
	assert.Empty(t, units[0].Filter)
}

func TestHearingsPlan_NilParamsUseDefaults(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CaptureHearings, nil, today)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", units[0].Request.Params.Get("status"))
}

func TestHearingsPlan_ExplicitWindow(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CaptureHearings, domain.HearingsParams{
		Start:  date("2024-04-01"),
		End:    date("2024-04-30"),
		Status: "held",
	}, today)
	require.NoError(t, err)

	q := units[0].Request.Params
	assert.Equal(t, "2024-04-01", q.Get("dataInicio"))
	assert.Equal(t, "2024-04-30", q.Get("dataFim"))
	assert.Equal(t, "held", q.Get("status"))
}

func TestHearingsPlan_RelativeWindow(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CaptureHearings, domain.HearingsParams{WindowDays: 30}, today)
	require.NoError(t, err)

	q := units[0].Request.Params
	assert.Equal(t, "2024-03-10", q.Get("dataInicio"))
	assert.Equal(t, "2024-04-09", q.Get("dataFim"))
}

func TestHearingsPlan_EndBeforeDefaultStart(t *testing.T) {
	_, err := capture.NewRegistry().Plan(domain.CaptureHearings, domain.HearingsParams{End: date("2024-01-01")}, today)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "params.end", verr.Field)
}

func TestPendingFilingsPlan_OneUnitPerFilter(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CapturePendingFilings, domain.PendingFilingsParams{
		Filters: []domain.PendingFilter{domain.FilterNoDeadline, domain.FilterWithinDeadline},
	}, today)
	require.NoError(t, err)

	assert.Equal(t, []string{"no-deadline", "within-deadline"}, capture.Filters(units))
	assert.Equal(t, "SEM_PRAZO", units[0].Request.Params.Get("prazo"))
	assert.Equal(t, "NO_PRAZO", units[1].Request.Params.Get("prazo"))
}

func TestPendingFilingsPlan_DefaultsToNoDeadline(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CapturePendingFilings, nil, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"no-deadline"}, capture.Filters(units))
}

func TestTimelinePlan(t *testing.T) {
	units, err := capture.NewRegistry().Plan(domain.CaptureTimeline, domain.TimelineParams{ProcessID: "0010001-23.2024.5.15.0001"}, today)
	require.NoError(t, err)
	assert.Equal(t, "/api/processos/0010001-23.2024.5.15.0001/timeline", units[0].Request.Endpoint)

	_, err = capture.NewRegistry().Plan(domain.CaptureTimeline, nil, today)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPlan_RejectsParamsOfAnotherKind(t *testing.T) {
	_, err := capture.NewRegistry().Plan(domain.CaptureParties, domain.HearingsParams{}, today)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPartiesAndDocketPlans(t *testing.T) {
	r := capture.NewRegistry()

	units, err := r.Plan(domain.CaptureParties, domain.PartiesParams{Role: "passive"}, today)
	require.NoError(t, err)
	assert.Equal(t, "PASSIVO", units[0].Request.Params.Get("polo"))

	units, err = r.Plan(domain.CaptureGeneralDocket, domain.GeneralDocketParams{Search: "acme"}, today)
	require.NoError(t, err)
	assert.Equal(t, "acme", units[0].Request.Params.Get("termo"))

	units, err = r.Plan(domain.CaptureArchived, domain.ArchivedParams{Since: date("2023-12-31")}, today)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", units[0].Request.Params.Get("dataArquivamentoInicio"))
}

func TestToday_UsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	got := capture.Today(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2024-03-09", got.String())
}
