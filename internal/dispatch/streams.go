package dispatch

import (
	"strings"

	"github.com/reviewstream/pkg/models"
)

// The two append-only request streams. The DIFF pipeline and the AGENTIC
// pipeline each own exactly one; routing depends on the request mode and
// nothing else.
const (
	StreamDiffRequests    = "review:requests"
	StreamAgenticRequests = "review:agent-requests"
)

// StreamForMode selects the stream a request is appended to.
func StreamForMode(mode models.ReviewMode) string {
	if mode == models.ModeAgentic {
		return StreamAgenticRequests
	}
	return StreamDiffRequests
}

// riverQueue maps a stream name onto River's queue-name charset (colons are
// not permitted in queue identifiers).
func riverQueue(stream string) string {
	return strings.ReplaceAll(stream, ":", "-")
}
