// Package notify tells consumers that a stage type has new claimable work.
//
// The engine never blocks waiting for work: consumers poll. Notifiers let
// them poll right away instead of waiting out their interval. Delivery is
// best effort; a lost notification only delays work until the next poll.
package notify

import (
	"context"
	"errors"
)

// Nop discards notifications.
type Nop struct{}

// Notify implements manager.Notifier.
func (Nop) Notify(context.Context, string) error { return nil }

// Notifier is the manager.Notifier contract, restated to keep this package
// free of engine imports.
type Notifier interface {
	Notify(ctx context.Context, stageType string) error
}

// Fanout sends every notification to each of its notifiers.
type Fanout []Notifier

// Notify calls every notifier and joins their errors.
func (f Fanout) Notify(ctx context.Context, stageType string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, stageType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
