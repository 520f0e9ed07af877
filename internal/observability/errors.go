package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/postpulse/postpulse/internal/httpx"
)

// Error kinds carried into collection_failed reasons and the /stats
// breakdown. Browser covers everything from chromium launch to CDP loss.
const (
	ErrorNetwork   = "network"
	ErrorRateLimit = "rate_limit"
	ErrorTimeout   = "timeout"
	ErrorBrowser   = "browser"
	ErrorRobots    = "robots"
	ErrorParsing   = "parsing"
	ErrorUnknown   = "unknown"
)

func ClassifyFetchError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		switch {
		case fe.Status == http.StatusTooManyRequests:
			return ErrorRateLimit
		default:
			return ErrorNetwork
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorUnknown
}

// ClassifyHarvestError maps any error surfaced by a harvester onto the
// error taxonomy. The result doubles as the failure reason prefix on
// collection_failed records.
func ClassifyHarvestError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if kind := ClassifyFetchError(err); kind != ErrorUnknown {
		return kind
	}
	if errors.Is(err, httpx.ErrRobotsDisallowed) {
		return ErrorRobots
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout"):
		return ErrorTimeout
	case strings.Contains(msg, "chrome") ||
		strings.Contains(msg, "chromium") ||
		strings.Contains(msg, "browser") ||
		strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "navigate") ||
		strings.Contains(msg, "launch"):
		return ErrorBrowser
	case strings.Contains(msg, "parse failed") ||
		strings.Contains(msg, "decode failed") ||
		strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "invalid character"):
		return ErrorParsing
	}
	return ErrorNetwork
}
