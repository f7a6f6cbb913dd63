package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PresenceBroadcaster is implemented by service.Manager.
type PresenceBroadcaster interface {
	BroadcastPresence(ctx context.Context) (int, error)
}

// StartPresenceWorker keeps connected bots shown as online until ctx is done.
// A non-positive interval disables the worker.
func StartPresenceWorker(ctx context.Context, bots PresenceBroadcaster, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		log.Info().Msg("⏸️  Presence worker disabled (PRESENCE_INTERVAL=0)")
		return
	}
	log.Info().Dur("interval", interval).Msg("🤖 Presence worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("presence worker stopped")
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			n, err := bots.BroadcastPresence(tickCtx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Int("sent", n).Msg("💓 presence round finished with errors")
				continue
			}
			log.Debug().Int("sent", n).Msg("💓 presence sent")
		}
	}
}
