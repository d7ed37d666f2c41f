package generation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// FailureKind is the coarse classification surfaced to the user when a
// request terminates as failed: either nothing reached the service, or the
// service answered with a non-success result.
type FailureKind int

const (
	FailureNetwork FailureKind = iota
	FailureStatus
)

func (k FailureKind) String() string {
	if k == FailureNetwork {
		return "network failure"
	}
	return "service error"
}

// Classify maps a generation error to its coarse failure kind. Errors from
// the dialing and transport layers count as network failures; everything
// else means the service was reached and answered badly.
func Classify(err error) FailureKind {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return FailureNetwork
	}
	return FailureStatus
}

// FailureMessage renders the synthesized message appended in place of a real
// answer when a request fails.
func FailureMessage(err error) string {
	switch Classify(err) {
	case FailureNetwork:
		return "request failed: could not reach the generation service (network failure)"
	default:
		return fmt.Sprintf("request failed: generation service error: %v", err)
	}
}
