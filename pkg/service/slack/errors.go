package slack

import (
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

var (
	// ErrNoChannel is returned when conversations.open succeeds without a channel id
	ErrNoChannel = goerr.New("No channel id returned by Slack.")
)

// ErrorKind is the coarse category of a Slack API failure
type ErrorKind int

const (
	// KindUnknown is anything that is not a recognized Slack error
	KindUnknown ErrorKind = iota
	// KindRemote is a non rate-limit API or HTTP failure
	KindRemote
	// KindRateLimited is HTTP 429 or the "ratelimited" error code
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// RemoteError is the classified view of an error returned by Service
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	RetryAfter time.Duration
	Message    string
}

// RateLimited reports whether the failure was caused by throttling
func (x RemoteError) RateLimited() bool {
	return x.Kind == KindRateLimited
}

const codeRateLimited = "ratelimited"

// ClassifyError maps an error returned by slack-go (possibly wrapped by
// goerr) onto ErrorKind. A nil error classifies as KindUnknown with an empty
// message.
func ClassifyError(err error) RemoteError {
	if err == nil {
		return RemoteError{}
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return RemoteError{
			Kind:       KindRateLimited,
			StatusCode: http.StatusTooManyRequests,
			Code:       codeRateLimited,
			RetryAfter: rateLimited.RetryAfter,
			Message:    rateLimited.Error(),
		}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		kind := KindRemote
		if statusErr.Code == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return RemoteError{
			Kind:       kind,
			StatusCode: statusErr.Code,
			Message:    statusErr.Error(),
		}
	}

	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		kind := KindRemote
		if resp.Err == codeRateLimited {
			kind = KindRateLimited
		}
		return RemoteError{
			Kind:    kind,
			Code:    resp.Err,
			Message: resp.Err,
		}
	}

	return RemoteError{
		Kind:    KindUnknown,
		Message: rootMessage(err),
	}
}

// rootMessage returns the innermost message so that goerr wrapping does not
// leak into user-facing text
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
