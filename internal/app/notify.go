package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "forecastbot/pkg/logx"
)

// sdNotifier reports lifecycle state to systemd. Outside systemd every call
// is a no-op.
type sdNotifier struct {
	log      logx.Logger
	watchdog bool
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	n := &sdNotifier{log: log}
	if iv, err := daemon.SdWatchdogEnabled(false); err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
	} else if iv > 0 {
		n.watchdog = true
		log.Info("systemd watchdog enabled", logx.Duration("interval", iv))
	}
	return n
}

func (n *sdNotifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("systemd notified", logx.String("state", state))
	}
}

func (n *sdNotifier) Ready()     { n.send(daemon.SdNotifyReady) }
func (n *sdNotifier) Reloading() { n.send(daemon.SdNotifyReloading) }
func (n *sdNotifier) Stopping()  { n.send(daemon.SdNotifyStopping) }

// Watchdog is called after every scheduler tick.
func (n *sdNotifier) Watchdog() {
	if n.watchdog {
		n.send(daemon.SdNotifyWatchdog)
	}
}
