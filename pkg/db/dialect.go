package db

import (
	"fmt"
	"strings"

	"hashmine/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm dialector for DATABASE.TYPE. For sqlite DBNAME is
// the file path (or ":memory:").
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	dbc := cfg.Database
	switch strings.ToLower(dbc.Type) {
	case "", "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			dbc.Host, dbc.User, dbc.Password, dbc.DBNAME, dbc.Port, dbc.SSLMode, dbc.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			dbc.User, dbc.Password, dbc.Host, dbc.Port, dbc.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dbc.DBNAME), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbc.Type)
	}
}
