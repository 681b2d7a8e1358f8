package rates

import "errors"

var (
	// ErrRateUnavailable indicates every rate endpoint failed.
	ErrRateUnavailable = errors.New("conversion rate unavailable from all endpoints")
	// ErrUnexpectedStatus indicates a non-200 HTTP response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrNoUSDRate indicates a response without a usable USD entry.
	ErrNoUSDRate = errors.New("no usable USD rate in response")
)
