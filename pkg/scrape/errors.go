package scrape

import "errors"

var (
	// ErrNotFound indicates a strategy found no plausible price on the page.
	ErrNotFound = errors.New("no plausible price found")
	// ErrNoObservation indicates all strategies were exhausted for a provider.
	ErrNoObservation = errors.New("all extraction strategies exhausted")
	// ErrImplausible indicates a normalized value fell outside the provider's
	// canonical plausibility window.
	ErrImplausible = errors.New("normalized price outside plausibility bounds")
	// ErrKeywordMissing indicates the fetched page never mentions the
	// provider's keyword, so any number on it would be the wrong line item.
	ErrKeywordMissing = errors.New("keyword not present in page content")
	// ErrUnexpectedStatus indicates a non-200 HTTP response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrUnknownPeriod indicates an unrecognized billing period.
	ErrUnknownPeriod = errors.New("unknown billing period")
)
