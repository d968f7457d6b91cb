package storage

import (
	"fmt"
	"strings"

	logx "autopilot/pkg/logx"
)

// Open initializes the configured history store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "history"), logx.String("driver", driverName(driver)))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func driverName(d string) string {
	if d == "" {
		return "file"
	}
	return d
}
