// Package normalizer converts provider-specific webhook payloads into the
// canonical internal event contract. Provider field names stop here: nothing
// downstream sees a sg_message_id or a MessageSid.
package normalizer

import (
	"fmt"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
)

// SkippedEvent describes one event in a batch that could not be normalized.
// Skips never abort the batch; providers mix many subscribers' events into
// one request and partial success is required.
type SkippedEvent struct {
	Index  int
	Reason string
}

// Error satisfies the error interface for logging convenience.
func (s SkippedEvent) Error() string {
	return fmt.Sprintf("event %d skipped: %s", s.Index, s.Reason)
}

func skip(index int, format string, args ...interface{}) SkippedEvent {
	return SkippedEvent{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// batchError marks a syntactically invalid request body. This is the only
// case where a webhook handler may answer with a client error.
func batchError(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrProviderPayload, err)
}
