package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"

	"study-assistant/internal/config"
	"study-assistant/internal/helper"
)

func NewDB(sqldb *sql.DB, dialect schema.Dialect, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, dialect)
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the metadata store named by cfg.Driver
func ConnectDB(cfg *config.DatabaseConfig) (*bun.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
			if err := helper.CreateFolder(filepath.Dir(cfg.DSN)); err != nil {
				return nil, err
			}
		}
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		return NewDB(sqldb, sqlitedialect.New(), cfg.Debug), nil

	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN), pgdriver.WithPassword(cfg.Password)))
		return NewDB(sqldb, pgdialect.New(), cfg.Debug), nil

	case "pq":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return NewDB(sqldb, pgdialect.New(), cfg.Debug), nil
	}
	return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
}

// InitDB creates the tables used by the catalog, the conversation log and
// the FAQ set
func InitDB(ctx context.Context, db *bun.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	for _, model := range []interface{}{
		(*DocumentRecord)(nil),
		(*MessageRecord)(nil),
		(*FAQRecord)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*MessageRecord)(nil)).
		Index("chat_messages_session_idx").
		Column("session_id", "created_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	log.Debug().Str("dialect", db.Dialect().Name().String()).Msg("Database initialized")
	return nil
}

// drop all tables

func DropTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*DocumentRecord)(nil),
		(*MessageRecord)(nil),
		(*FAQRecord)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}
