package storage

import (
	_ "github.com/mattn/go-sqlite3"

	"github.com/mubeen104/uips-attendance/internal/config"
)

type SQLiteProvider struct {
	SQLProvider
}

func NewSQLiteProvider(config *config.Storage) *SQLiteProvider {
	// foreign keys are off by default in sqlite
	base := NewSQLProvider(config, "sqlite3", config.SQLite.Path+"?_fk=true")
	if base == nil {
		return nil
	}
	return &SQLiteProvider{SQLProvider: *base}
}
