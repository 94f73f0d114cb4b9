package registry

import (
	"errors"
	"strings"

	logx "cibot/pkg/logx"
)

// OpenRepository initializes the configured repository.
// It returns (nil, nil) if persistence is disabled.
func OpenRepository(cfg Config, log logx.Logger) (Repository, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFileRepo(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLiteRepo(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
