package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"crosspost/pkg/logx"
)

// sdNotify tells systemd about state changes. Outside a Type=notify unit
// NOTIFY_SOCKET is unset and this is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdogLoop pings the systemd watchdog at half the configured interval
// while healthy reports true. It returns immediately when WatchdogSec is not set.
func watchdogLoop(ctx context.Context, log logx.Logger, healthy func() bool) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
		return nil
	}
	if interval <= 0 {
		return nil
	}
	tick := interval / 2
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				log.Warn("skipping watchdog ping; http server not ready")
				continue
			}
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}
