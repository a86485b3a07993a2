package storage

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/mubeen104/uips-attendance/internal/config"
)

type SQLProvider struct {
	db     *sqlx.DB
	driver string

	config *config.Storage

	logger *slog.Logger
}

func NewSQLProvider(config *config.Storage, driverName string, dataSource string) *SQLProvider {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		slog.Error("Failed to open database", "driver", driverName, "error", err)
		return nil
	}

	logger := slog.With("component", "storage", "driver", driverName)

	return &SQLProvider{
		db:     db,
		driver: driverName,
		config: config,
		logger: logger,
	}
}

func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *SQLProvider) GetSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := p.db.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// insertIgnore returns the driver's duplicate-absorbing INSERT verb.
func (p *SQLProvider) insertIgnore() string {
	if p.driver == "mysql" {
		return "INSERT IGNORE"
	}
	return "INSERT OR IGNORE"
}
