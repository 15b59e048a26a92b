package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// broadcaster publishes to one or more rooms and never fails the caller.
type broadcaster struct {
	pub     notify.Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newBroadcaster(pub notify.Publisher, m *metrics.Metrics, log zerolog.Logger) broadcaster {
	if pub == nil {
		pub = notify.Nop{}
	}
	return broadcaster{pub: pub, metrics: m, log: log}
}

func (b broadcaster) send(ctx context.Context, event notify.Event, payload any, rooms ...notify.Room) {
	for _, room := range rooms {
		if err := b.pub.Publish(ctx, room, event, payload); err != nil {
			b.metrics.IncNotifyFailure(string(event))
			b.log.Warn().Err(err).
				Str("event", string(event)).
				Str("room", string(room)).
				Msg("Notification dropped")
		}
	}
}
