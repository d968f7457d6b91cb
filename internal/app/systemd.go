package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify reports state to systemd when running under a Type=notify unit.
// Outside systemd it is a no-op.
func sdNotify(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	return ok && err == nil
}

// watchdogPing is called after every scheduler tick.
func watchdogPing() { sdNotify(daemon.SdNotifyWatchdog) }

// watchdogInterval returns the unit's WatchdogSec, or 0 when unset.
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
