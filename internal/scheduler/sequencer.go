package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/domain"
)

// CourtResolver is satisfied by *courts.Catalog.
type CourtResolver interface {
	Resolve(cred domain.CredentialDescriptor) (domain.CourtConfig, error)
}

// Unit is one credential x sub-filter execution handed to a UnitFunc.
type Unit struct {
	Credential  domain.CredentialDescriptor
	Court       domain.CourtConfig
	Session     courtapi.Session
	Filter      string
	FilterIndex int
}

type UnitFunc func(ctx context.Context, u Unit) (*capture.Result, error)

// Outcome is the result of one unit. Err, when set, is a *domain.AttemptError.
type Outcome struct {
	Credential domain.CredentialDescriptor
	Court      domain.CourtConfig
	Filter     string
	Result     *capture.Result
	Err        error
}

func (o Outcome) Failed() bool { return o.Err != nil }

// OrderCredentials sorts by ascending court number, then instance level.
// Codes without digits go after numbered ones, by code. The sort is stable.
func OrderCredentials(creds []domain.CredentialDescriptor) []domain.CredentialDescriptor {
	out := slices.Clone(creds)
	slices.SortStableFunc(out, func(a, b domain.CredentialDescriptor) int {
		an, aok := domain.CourtNumber(a.CourtCode)
		bn, bok := domain.CourtNumber(b.CourtCode)
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		case aok && bok && an != bn:
			return an - bn
		case !aok && !bok:
			if c := strings.Compare(strings.ToUpper(a.CourtCode), strings.ToUpper(b.CourtCode)); c != 0 {
				return c
			}
		}
		return a.InstanceLevel.Rank() - b.InstanceLevel.Rank()
	})
	return out
}

// Sequencer runs units strictly one at a time. Logging in with a credential
// invalidates every other session of the same identity, so nothing here may
// ever run concurrently.
type Sequencer struct {
	resolver CourtResolver
	auth     courtapi.Authenticator
	logger   *slog.Logger
}

func NewSequencer(resolver CourtResolver, auth courtapi.Authenticator, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		resolver: resolver,
		auth:     auth,
		logger:   logger.With("component", "sequencer"),
	}
}

// RunSequential orders creds and runs fn once per credential and filter.
// filters must hold at least one entry; "" means the kind has no sub-filters.
// It always returns len(creds)*len(filters) outcomes, in execution order.
// A failure while resolving the court or opening the session yields one error
// outcome per filter for that credential; the batch carries on. observe, when
// non-nil, sees each outcome as soon as it is known.
func (s *Sequencer) RunSequential(
	ctx context.Context,
	creds []domain.CredentialDescriptor,
	filters []string,
	fn UnitFunc,
	observe func(Outcome),
) []Outcome {
	if len(filters) == 0 {
		filters = []string{""}
	}
	ordered := OrderCredentials(creds)
	outcomes := make([]Outcome, 0, len(ordered)*len(filters))

	emit := func(o Outcome) {
		outcomes = append(outcomes, o)
		if observe != nil {
			observe(o)
		}
	}
	failAll := func(cred domain.CredentialDescriptor, court domain.CourtConfig, err error) {
		for _, f := range filters {
			emit(Outcome{Credential: cred, Court: court, Filter: f, Err: annotate(cred, f, err)})
		}
	}

	for _, cred := range ordered {
		logger := s.logger.With("credential_id", cred.ID, "court", cred.CourtCode, "instance", cred.InstanceLevel)

		court, err := s.resolver.Resolve(cred)
		if err != nil {
			logger.WarnContext(ctx, "resolve court failed", "error", err)
			failAll(cred, domain.CourtConfig{}, fmt.Errorf("resolve court: %w", err))
			continue
		}

		session, err := s.auth.Authenticate(ctx, court, cred)
		if err != nil {
			logger.WarnContext(ctx, "authenticate failed", "error", err)
			failAll(cred, court, fmt.Errorf("authenticate: %w", err))
			continue
		}

		for i, f := range filters {
			unit := Unit{Credential: cred, Court: court, Session: session, Filter: f, FilterIndex: i}
			res, err := s.runUnit(ctx, fn, unit)
			if err != nil {
				logger.WarnContext(ctx, "unit failed", "filter", f, "error", err)
				emit(Outcome{Credential: cred, Court: court, Filter: f, Result: res, Err: annotate(cred, f, err)})
				continue
			}
			emit(Outcome{Credential: cred, Court: court, Filter: f, Result: res})
		}
	}
	return outcomes
}

func (s *Sequencer) runUnit(ctx context.Context, fn UnitFunc, u Unit) (res *capture.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "unit panicked", "credential_id", u.Credential.ID, "filter", u.Filter, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, u)
}

func annotate(cred domain.CredentialDescriptor, filter string, err error) error {
	return &domain.AttemptError{
		CourtCode:     cred.CourtCode,
		InstanceLevel: cred.InstanceLevel,
		CredentialID:  cred.ID,
		Filter:        filter,
		Err:           err,
	}
}
