package domain

import "errors"

// Sentinel error kinds for the error handling design in spec §7. Components
// wrap these with fmt.Errorf("...: %w", ErrX) so callers can errors.Is/As
// instead of string-matching, per the "result types over exceptions" design
// note.
var (
	// ErrConnectivity marks a database or network connectivity fault,
	// distinguished from ordinary query errors (spec §7 kind 5).
	ErrConnectivity = errors.New("connectivity fault")

	// ErrPaywalled marks a paid-subscription extraction outcome — not a
	// failure, a structured diversion to the archive path (spec §7 kind 2).
	ErrPaywalled = errors.New("paywalled")

	// ErrBlacklisted marks a domain that has crossed the auto-blacklist threshold.
	ErrBlacklisted = errors.New("domain blacklisted")

	// ErrBudgetExhausted marks a per-article or per-job time budget overrun.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrMalformedJSON marks an LLM response that could not be parsed as
	// structured JSON after retries (spec §7 kind 8).
	ErrMalformedJSON = errors.New("malformed LLM JSON")

	// ErrArchiveNotReady marks a submitted-but-not-yet-available archive snapshot.
	ErrArchiveNotReady = errors.New("archive not ready")
)

// ConnectivityError wraps a database connectivity fault with its cause,
// distinguishing IPv6-unreachable and similar transport failures from
// ordinary query errors (spec §7 kind 5).
type ConnectivityError struct {
	Store string
	Cause error
}

func (e *ConnectivityError) Error() string {
	return "connectivity fault for " + e.Store + ": " + e.Cause.Error()
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }
