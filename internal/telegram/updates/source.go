package updates

import (
	"context"
	"net/http"
)

// Source delivers Telegram updates to a processor.
type Source interface {
	// Start begins receiving updates.
	Start(ctx context.Context) error
	// Stop stops receiving updates.
	Stop(ctx context.Context) error
	// Handler returns HTTP handler for webhook mode (nil for long polling).
	Handler() http.Handler
}
