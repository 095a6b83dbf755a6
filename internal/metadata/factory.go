package metadata

import (
	"context"
	"fmt"

	"github.com/ngasd/ngasd/internal/config"
)

// NewGateway builds the Gateway selected by metadata.backend
func NewGateway(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch cfg.Metadata.Backend {
	case "etcd", "":
		return NewEtcdGateway(EtcdOptions{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
		})
	case "postgres":
		if _, err := Migrate(cfg.Postgres.MigrateURL()); err != nil {
			return nil, err
		}
		pool, err := ConnectPostgres(ctx, cfg.Postgres.DatabaseDSN(), cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresGateway(pool), nil
	case "memory":
		return NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.Metadata.Backend)
	}
}
