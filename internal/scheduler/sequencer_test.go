package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptors(cs ...*domain.CredentialDescriptor) []domain.CredentialDescriptor {
	out := make([]domain.CredentialDescriptor, len(cs))
	for i, c := range cs {
		out[i] = *c
	}
	return out
}

func TestOrderCredentials(t *testing.T) {
	in := descriptors(
		cred("a", "TRT15", domain.InstanceSecond),
		cred("b", "STF", domain.InstanceFirst),
		cred("c", "TRT2", domain.InstanceSecond),
		cred("d", "TRT15", domain.InstanceFirst),
		cred("e", "TRT2", domain.InstanceFirst),
		cred("f", "TRT2", domain.InstanceFirst),
		cred("g", "ABC", domain.InstanceFirst),
	)

	got := scheduler.OrderCredentials(in)

	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"e", "f", "c", "d", "a", "g", "b"}, ids)
	assert.Equal(t, "a", in[0].ID, "input must not be reordered")
}

func TestRunSequential_IsolatesFailures(t *testing.T) {
	auth := &fakeAuth{}
	seq := scheduler.NewSequencer(fakeResolver{}, auth, discardLogger())

	creds := descriptors(
		cred("c1", "TRT1", domain.InstanceFirst),
		cred("c2", "TRT2", domain.InstanceFirst),
		cred("c3", "TRT3", domain.InstanceFirst),
	)

	var active, maxActive int32
	var order []string
	outcomes := seq.RunSequential(context.Background(), creds, []string{""}, func(_ context.Context, u scheduler.Unit) (*capture.Result, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		order = append(order, u.Credential.ID)
		if u.Credential.ID == "c2" {
			return nil, errors.New("portal unavailable")
		}
		return okResult(2), nil
	}, nil)

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, order)
	assert.EqualValues(t, 1, maxActive)

	assert.False(t, outcomes[0].Failed())
	assert.True(t, outcomes[1].Failed())
	assert.False(t, outcomes[2].Failed())
	assert.Equal(t, "c2", outcomes[1].Credential.ID)

	var attemptErr *domain.AttemptError
	require.ErrorAs(t, outcomes[1].Err, &attemptErr)
	assert.Equal(t, "TRT2", attemptErr.CourtCode)
	assert.Equal(t, "c2", attemptErr.CredentialID)
	assert.Equal(t, "TRT2 first (c2): portal unavailable", outcomes[1].Err.Error())
}

func TestRunSequential_RecoversPanic(t *testing.T) {
	seq := scheduler.NewSequencer(fakeResolver{}, &fakeAuth{}, discardLogger())
	creds := descriptors(cred("c1", "TRT1", domain.InstanceFirst), cred("c2", "TRT2", domain.InstanceFirst))

	outcomes := seq.RunSequential(context.Background(), creds, nil, func(_ context.Context, u scheduler.Unit) (*capture.Result, error) {
		if u.Credential.ID == "c1" {
			panic("nil map")
		}
		return okResult(1), nil
	}, nil)

	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Failed())
	assert.Contains(t, outcomes[0].Err.Error(), "panic: nil map")
	assert.False(t, outcomes[1].Failed())
}

func TestRunSequential_ResolveAndAuthFailuresYieldOutcomePerFilter(t *testing.T) {
	resolver := fakeResolver{fail: map[string]error{
		"TRT9": &domain.NotFoundError{Resource: "court", ID: "TRT9"},
	}}
	auth := &fakeAuth{fail: map[string]error{"c2": errors.New("bad token")}}
	seq := scheduler.NewSequencer(resolver, auth, discardLogger())

	creds := descriptors(
		cred("c1", "TRT9", domain.InstanceFirst),
		cred("c2", "TRT10", domain.InstanceFirst),
		cred("c3", "TRT11", domain.InstanceFirst),
	)
	filters := []string{"no-deadline", "within-deadline"}

	var calls int
	var observed []scheduler.Outcome
	outcomes := seq.RunSequential(context.Background(), creds, filters, func(_ context.Context, u scheduler.Unit) (*capture.Result, error) {
		calls++
		assert.Equal(t, "c3", u.Credential.ID)
		assert.Equal(t, filters[u.FilterIndex], u.Filter)
		return okResult(1), nil
	}, func(o scheduler.Outcome) { observed = append(observed, o) })

	require.Len(t, outcomes, 6)
	assert.Equal(t, outcomes, observed)
	assert.Equal(t, 2, calls)

	for i := 0; i < 4; i++ {
		assert.True(t, outcomes[i].Failed(), "outcome %d", i)
		assert.Equal(t, filters[i%2], outcomes[i].Filter)
	}
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrNotFound)
	assert.Contains(t, outcomes[2].Err.Error(), "authenticate: bad token")
	assert.False(t, outcomes[4].Failed())
	assert.False(t, outcomes[5].Failed())

	// c1 never reached authentication.
	assert.Equal(t, []string{"c2", "c3"}, auth.calls)
}

func TestRunSequential_OneSessionPerCredential(t *testing.T) {
	auth := &fakeAuth{}
	seq := scheduler.NewSequencer(fakeResolver{}, auth, discardLogger())
	creds := descriptors(cred("c1", "TRT1", domain.InstanceFirst))

	outcomes := seq.RunSequential(context.Background(), creds, []string{"a", "b", "c"}, func(context.Context, scheduler.Unit) (*capture.Result, error) {
		return okResult(0), nil
	}, nil)

	assert.Len(t, outcomes, 3)
	assert.Equal(t, []string{"c1"}, auth.calls)
}
