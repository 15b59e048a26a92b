package notify

import (
	"context"
	"errors"
)

// Multi publishes to every wrapped publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, room Room, event Event, payload any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, room, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
