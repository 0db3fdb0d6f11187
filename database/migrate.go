package database

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	logger *zap.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies the embedded shop schema migrations. DuckDB databases
// are provisioned outside goose, so Migrate fails for them.
func (m *Manager) Migrate(ctx context.Context) error {
	dir, err := m.prepareGoose()
	if err != nil {
		return err
	}
	defer gooseMu.Unlock()

	if err := goose.UpContext(ctx, m.db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, table := range shopTables {
		m.InvalidateTableSchema(table)
	}
	return nil
}

// MigrationVersion returns the current migration version.
func (m *Manager) MigrationVersion(ctx context.Context) (int64, error) {
	if _, err := m.prepareGoose(); err != nil {
		return 0, err
	}
	defer gooseMu.Unlock()

	return goose.GetDBVersionContext(ctx, m.db)
}

// prepareGoose configures goose for the store and returns the migration
// directory. On success the caller holds gooseMu.
func (m *Manager) prepareGoose() (string, error) {
	dialect := m.dialect.GooseDialect()
	if dialect == "" {
		return "", fmt.Errorf("migrations are not supported for %s", m.dialect.Name())
	}

	gooseMu.Lock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: m.logger})
	if err := goose.SetDialect(dialect); err != nil {
		gooseMu.Unlock()
		return "", fmt.Errorf("failed to set dialect: %w", err)
	}
	return "migrations/" + m.dialect.Name(), nil
}

// shopTables lists the tables created by the migrations.
var shopTables = []string{
	"users", "categories", "products", "coupons", "faqs", "orders",
	"order_items", "reviews", "wishlists", "notifications", "contact_messages", "payments",
}
