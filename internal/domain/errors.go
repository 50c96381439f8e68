package domain

import "errors"

// Source errors. Adapters wrap them with the symbol involved; callers classify
// with errors.Is.
var (
	// ErrSourceUnavailable is a transport, HTTP or decoding failure. Retry later.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSymbolNotFound means the provider confirmed the symbol does not exist.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrQuotaExceeded means the provider throttled us; the adapter is cooling down.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoDataAvailable means the provider answered with an empty payload.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrKindRequired is a programming error: an instrument reached a source
	// without its asset kind. It is never retried.
	ErrKindRequired = errors.New("asset kind is required")
)

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrIndexNotFound      = errors.New("index not found")
)
