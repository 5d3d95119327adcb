package pipeline

import (
	"context"

	"github.com/srg/moment/internal/device"
	"github.com/srg/moment/internal/session"
)

// watch subscribes to disconnect notifications of raw. Every notification
// starts an independent Reconnect run; there is no debouncing. Notifications
// arriving after ctx is done or after the task group is closed are ignored.
func (p *Pipeline) watch(ctx context.Context, sess *session.Session, raw device.RawDevice) {
	log := p.logger.WithField("device_id", raw.ID())

	raw.OnDisconnected(func() {
		if ctx.Err() != nil {
			log.Debug("Disconnect notification after shutdown, ignoring")
			return
		}
		started := p.tasks.Go(ctx, "moment-reconnect", func(ctx context.Context) {
			p.Reconnect(ctx, sess)
		})
		if !started {
			log.Debug("Disconnect notification after shutdown, ignoring")
			return
		}
		log.Warn("Moment device disconnected, reconnecting...")
	})

	log.Debug("Disconnect watcher armed")
}
