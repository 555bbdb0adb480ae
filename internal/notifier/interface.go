package notifier

import (
	"context"

	"github.com/newthinker/upbot/internal/config"
)

// Notifier delivers bot events to one channel.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init applies configuration and checks required settings
	Init(cfg config.NotifierConfig) error

	// Send delivers a single event
	Send(ctx context.Context, e Event) error

	// SendBatch delivers several events as one message
	SendBatch(ctx context.Context, events []Event) error
}
