package testutil

import (
	"fmt"
	"strings"
	"testing"

	"hashmine/pkg/db"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory sqlite database for t and migrates
// models into it. Failed statements are logged to the test output.
//
// The pool is capped at one connection, so code running inside a
// transaction must use that transaction for every query.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: db.NewZapGormLogger(zaptest.NewLogger(t), logger.Error, false),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := gdb.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate %T: %v", models, err)
		}
	}
	return gdb
}

// NewNode returns the snowflake node fixtures use for IDs.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
