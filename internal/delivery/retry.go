package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Verdict is the retry decision for one delivery outcome.
type Verdict int

const (
	Successful Verdict = iota
	Retry
	DontRetry
)

func (v Verdict) String() string {
	switch v {
	case Successful:
		return "successful"
	case Retry:
		return "retry"
	case DontRetry:
		return "dont_retry"
	default:
		return "unknown"
	}
}

// Action pairs a verdict with a human-readable reason.
type Action struct {
	Verdict Verdict
	Reason  string
}

// Classify maps the outcome of Send to a retry action. It is pure: no
// I/O, no side effects, total over every status code and transport error.
//
//	transport failure      -> Retry (always retriable)
//	429                    -> Retry "too many requests"
//	501                    -> DontRetry "endpoint not implemented"
//	other 5xx              -> Retry with the status line
//	2xx                    -> Successful
//	anything else          -> DontRetry "response status: <code>"
func Classify(res *Response, err error) Action {
	if err != nil {
		var srvErr *ServerError
		if errors.As(err, &srvErr) {
			return classifyStatus(srvErr.StatusCode)
		}
		return Action{Verdict: Retry, Reason: err.Error()}
	}
	return classifyStatus(res.StatusCode)
}

func classifyStatus(code int) Action {
	switch {
	case code == http.StatusTooManyRequests:
		return Action{Verdict: Retry, Reason: "too many requests"}
	case code == http.StatusNotImplemented:
		return Action{Verdict: DontRetry, Reason: "endpoint not implemented"}
	case code >= 500 && code <= 599:
		return Action{Verdict: Retry, Reason: statusLine(code)}
	case code >= 200 && code <= 299:
		return Action{Verdict: Successful}
	default:
		return Action{Verdict: DontRetry, Reason: fmt.Sprintf("response status: %s", statusLine(code))}
	}
}

// statusLine renders a status code with its text, e.g. "503 Service
// Unavailable". Unknown codes render as the bare number.
func statusLine(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return strconv.Itoa(code)
	}
	return fmt.Sprintf("%d %s", code, text)
}
