package domain

import (
	"strconv"
	"strings"
	"time"
)

type InstanceLevel string

const (
	InstanceFirst  InstanceLevel = "first"
	InstanceSecond InstanceLevel = "second"
)

func (l InstanceLevel) Valid() bool {
	return l == InstanceFirst || l == InstanceSecond
}

// Rank orders first before second; unknown levels sort last.
func (l InstanceLevel) Rank() int {
	switch l {
	case InstanceFirst:
		return 1
	case InstanceSecond:
		return 2
	default:
		return 3
	}
}

// CredentialDescriptor is an identity usable against exactly one court and
// instance. AuthMaterial is opaque to the engine and handed to the session
// authenticator untouched.
type CredentialDescriptor struct {
	ID            string
	OwnerID       string
	CourtCode     string
	InstanceLevel InstanceLevel
	AuthMaterial  string
	CreatedAt     time.Time
}

// CourtNumber extracts the numeric part of a court code ("TRT15" -> 15).
// ok is false when the code carries no digits.
func CourtNumber(code string) (n int, ok bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CourtConfig is the resolved endpoint configuration for one court instance.
type CourtConfig struct {
	Code              string
	Number            int
	Name              string
	InstanceLevel     InstanceLevel
	BaseURL           string
	RequestsPerSecond float64
	// nil leaves the fetcher's default in place; zero disables the pause.
	InterPageDelay *time.Duration
}
