// Package notify delivers operational alerts (fills, hard stops, archive
// results) to external channels.
package notify

import "context"

// Notifier delivers a single alert. Implementations must be safe for
// concurrent use and should treat delivery as best effort; the engine never
// blocks a tick on a failed notification.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Multi fans an alert out to several notifiers, returning the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards every alert.
type Nop struct{}

func (Nop) Notify(ctx context.Context, subject, body string) error { return nil }
