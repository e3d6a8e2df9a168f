package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type MigrationTask struct {
	ID              int64     `bun:",pk,autoincrement"`
	TaskID          string    `bun:",notnull,unique"`
	MigrationPlanID int64     `bun:",notnull"`
	Kind            string    `bun:",notnull,default:'migrate'"`
	Status          string    `bun:",notnull"`
	LastMessage     string    `bun:",nullzero"`
	StartedAt       time.Time `bun:",nullzero"`
	FinishedAt      time.Time `bun:",nullzero"`
	times
}

type ProgressReport struct {
	ID              int64  `bun:",pk,autoincrement"`
	MigrationTaskID int64  `bun:",notnull"`
	Message         string `bun:",notnull"`
	Code            string `bun:",notnull"`
	State           string `bun:",notnull,default:'running'"`
	Total           int64  `bun:",notnull,default:0"`
	Done            int64  `bun:",notnull,default:0"`
	Skipped         int64  `bun:",notnull,default:0"`
	times
}

var migrationTaskTables = []any{
	MigrationTask{},
	ProgressReport{},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return createTables(ctx, db, migrationTaskTables...)
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, migrationTaskTables...)
	})
}
