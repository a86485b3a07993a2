package storage

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/mubeen104/uips-attendance/internal/config"
)

type MySQLProvider struct {
	SQLProvider
}

func NewMySQLProvider(config *config.Storage) *MySQLProvider {
	c := config.MySQL
	// multiStatements is required for multi-statement migration files
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&multiStatements=true",
		c.Username, c.Password, c.Host, c.Port, c.Database)

	base := NewSQLProvider(config, "mysql", dsn)
	if base == nil {
		return nil
	}
	return &MySQLProvider{SQLProvider: *base}
}
