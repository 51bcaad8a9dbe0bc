// internal/store/open.go
package store

import (
	"fmt"

	"github.com/replenlabs/supplyengine/internal/config"
)

// Open builds the KV backend selected by configuration.
func Open(cfg config.Store) (KV, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis)
	case "postgres":
		pg := cfg.Postgres
		return NewPostgresStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
