package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"

	"opencsg.com/pulp-migrator/builder/store/database/migrations"
)

type DatabaseDialect string

const (
	DialectPostgres DatabaseDialect = "pg"
)

type DBConfig struct {
	Dialect DatabaseDialect
	DSN     string
}

type Operator struct {
	Core *bun.DB
}

type DB struct {
	Operator
	BunDB *bun.DB
}

func (db *DB) Close() error {
	return db.BunDB.Close()
}

// RunInTx runs fn inside a transaction, using a DB whose Core is the tx.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return db.BunDB.RunInTx(ctx, &sql.TxOptions{}, fn)
}

var defaultDB *DB

// InitDB initializes the package level db connection used by
// the NewXxxStore constructors.
func InitDB(config DBConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := NewDB(ctx, config)
	if err != nil {
		return err
	}
	defaultDB = db
	return nil
}

func GetDB() *DB {
	return defaultDB
}

func NewDB(ctx context.Context, config DBConfig) (*DB, error) {
	var bunDB *bun.DB
	switch config.Dialect {
	case DialectPostgres:
		sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(config.DSN)))
		bunDB = bun.NewDB(sqlDB, pgdialect.New(), bun.WithDiscardUnknownColumns())
	default:
		return nil, fmt.Errorf("unknown database dialect %q", config.Dialect)
	}

	if err := bunDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging %s database: %w", config.Dialect, err)
	}

	bunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),

		// DB_DEBUG=1 logs failed queries
		// DB_DEBUG=2 logs all queries
		bundebug.FromEnv("DB_DEBUG"),
	))

	registerModels(bunDB)

	return &DB{
		Operator: Operator{Core: bunDB},
		BunDB:    bunDB,
	}, nil
}

// RegisterModels must be called on every new bun connection so the
// many-to-many join tables are known to the query builder.
func registerModels(bunDB *bun.DB) {
	bunDB.RegisterModel((*Pulp2DistributorRepository)(nil))
}

func NewMigrator(db *DB) *migrate.Migrator {
	return migrate.NewMigrator(db.BunDB, migrations.Migrations)
}
