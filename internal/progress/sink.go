package progress

import (
	"context"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// Sink consumes batches of events in publish order. Consume is only ever
// called from the hub's goroutine; Close is called once on shutdown.
type Sink interface {
	Consume(ctx context.Context, batch []hunter.Event) error
	Close(ctx context.Context) error
}
