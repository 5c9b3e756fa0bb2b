package domain

import "errors"

// Sentinel errors shared across the dispatch pipeline. Stages and the API
// layer branch on these to decide between retry, terminal failure, and the
// HTTP status returned to the caller.
var (
	// ErrNotFound covers unknown campaigns and missing credential records.
	ErrNotFound = errors.New("not found")

	// ErrUnknownProvider means the agendamento id prefix maps to no provider.
	ErrUnknownProvider = errors.New("unknown provider prefix")

	// ErrNoData means the system of record returned an empty recipient list.
	ErrNoData = errors.New("no data found for agendamento")

	// ErrMissingWallet means the first recipient carries no environment id.
	ErrMissingWallet = errors.New("recipient data has no wallet id")

	// ErrValidation covers malformed requests rejected at the edge.
	ErrValidation = errors.New("validation failed")
)

// Terminal reports whether err is a business failure that must not be
// retried at the job level.
func Terminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownProvider) ||
		errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrMissingWallet) ||
		errors.Is(err, ErrValidation)
}
