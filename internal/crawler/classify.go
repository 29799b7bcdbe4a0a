package crawler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
)

// ClassifierRule maps an error shape onto a failure type. Rules are evaluated
// in order; the first match wins.
type ClassifierRule struct {
	Name    string
	Type    FailureType
	Matches func(err error, statusCode int) bool
}

// Classifier turns fetch errors into a temporary/permanent tag. Unmatched
// errors classify as permanent so unknown error shapes are never retried
// indefinitely.
type Classifier struct {
	rules []ClassifierRule
}

// NewClassifier builds a classifier from rules, evaluated in order.
func NewClassifier(rules []ClassifierRule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns the standard rule set: connection resets,
// timeouts, 5xx responses and browser/navigation faults are temporary;
// 404/410, robots denials and content-type rejections are permanent.
func DefaultClassifier() *Classifier {
	return NewClassifier([]ClassifierRule{
		{
			Name: "robots-denied",
			Type: FailurePermanent,
			Matches: func(err error, _ int) bool {
				var denied *RobotsDeniedError
				return errors.As(err, &denied)
			},
		},
		{
			Name: "http-gone",
			Type: FailurePermanent,
			Matches: func(_ error, status int) bool {
				return status == http.StatusNotFound || status == http.StatusGone
			},
		},
		{
			Name: "http-client-error",
			Type: FailurePermanent,
			Matches: func(_ error, status int) bool {
				// 429 is throttling, not a dead page.
				return status >= 400 && status < 500 && status != http.StatusTooManyRequests
			},
		},
		{
			Name: "http-server-error",
			Type: FailureTemporary,
			Matches: func(_ error, status int) bool {
				return status >= 500 || status == http.StatusTooManyRequests
			},
		},
		{
			Name: "browser-fault",
			Type: FailureTemporary,
			Matches: func(err error, _ int) bool {
				var browser *BrowserError
				return errors.As(err, &browser)
			},
		},
		{
			Name: "timeout",
			Type: FailureTemporary,
			Matches: func(err error, _ int) bool {
				if errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				var netErr net.Error
				return errors.As(err, &netErr) && netErr.Timeout()
			},
		},
		{
			Name:    "transient-network",
			Type:    FailureTemporary,
			Matches: matchMessage(transientMessagePattern),
		},
		{
			Name:    "rejected-content",
			Type:    FailurePermanent,
			Matches: matchMessage(rejectedMessagePattern),
		},
	})
}

var (
	transientMessagePattern = regexp.MustCompile(
		`(?i)connection (reset|refused|closed)|broken pipe|ECONNRESET|` +
			`no such host temporarily|net::ERR_(TIMED_OUT|CONNECTION|NETWORK|INTERNET_DISCONNECTED)|` +
			`target closed|browser closed|websocket.*closed|navigation.*timed? ?out`)

	rejectedMessagePattern = regexp.MustCompile(
		`(?i)unsupported content.?type|not found|gone|robots\.txt disallows`)
)

func matchMessage(pattern *regexp.Regexp) func(error, int) bool {
	return func(err error, _ int) bool {
		return err != nil && pattern.MatchString(err.Error())
	}
}

// Classify tags err. Status code takes precedence over message shape when the
// error carries one.
func (c *Classifier) Classify(err error) FailureType {
	if err == nil {
		return FailureNone
	}
	status := 0
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.StatusCode
	}
	for _, rule := range c.rules {
		if rule.Matches(err, status) {
			return rule.Type
		}
	}
	// Fail safe: unknown error shapes are terminal for this URL.
	return FailurePermanent
}
