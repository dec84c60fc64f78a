package notify

import "context"

// Message carries everything worth showing about one extracted code.
type Message struct {
	Time    string
	Source  string
	Channel string
	Code    string
	Text    string
}

// Notifier delivers a formatted message to a fixed destination.
// Implementations own their retry policy; a nil error means the
// destination confirmed the delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
