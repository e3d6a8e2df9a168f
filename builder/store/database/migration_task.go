package database

import (
	"context"
	"time"

	"opencsg.com/pulp-migrator/common/types"
)

type MigrationTaskStore struct {
	db *DB
}

func NewMigrationTaskStore() *MigrationTaskStore {
	return &MigrationTaskStore{
		db: defaultDB,
	}
}

func NewMigrationTaskStoreWithDB(db *DB) *MigrationTaskStore {
	return &MigrationTaskStore{
		db: db,
	}
}

// MigrationTask is one migrate or reset run.
type MigrationTask struct {
	ID              int64                     `bun:",pk,autoincrement" json:"id"`
	TaskID          string                    `bun:",notnull,unique" json:"task_id"`
	MigrationPlanID int64                     `bun:",notnull" json:"migration_plan_id"`
	Kind            string                    `bun:",notnull,default:'migrate'" json:"kind"`
	Status          types.MigrationTaskStatus `bun:",notnull" json:"status"`
	LastMessage     string                    `bun:",nullzero" json:"last_message"`
	StartedAt       time.Time                 `bun:",nullzero" json:"started_at"`
	FinishedAt      time.Time                 `bun:",nullzero" json:"finished_at"`

	MigrationPlan *MigrationPlan `bun:"rel:belongs-to,join:migration_plan_id=id" json:"migration_plan,omitempty"`

	times
}

// ProgressReport is one phase counter of a task: pre-migration general
// and detail, repo creation, importer migration, content migration per
// family and type, distribution creation.
type ProgressReport struct {
	ID              int64  `bun:",pk,autoincrement" json:"id"`
	MigrationTaskID int64  `bun:",notnull" json:"migration_task_id"`
	Message         string `bun:",notnull" json:"message"`
	Code            string `bun:",notnull" json:"code"`
	State           string `bun:",notnull,default:'running'" json:"state"`
	Total           int64  `bun:",notnull,default:0" json:"total"`
	Done            int64  `bun:",notnull,default:0" json:"done"`
	Skipped         int64  `bun:",notnull,default:0" json:"skipped"`

	MigrationTask *MigrationTask `bun:"rel:belongs-to,join:migration_task_id=id" json:"migration_task,omitempty"`

	times
}

func (s *MigrationTaskStore) Create(ctx context.Context, task *MigrationTask) (*MigrationTask, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(task).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *MigrationTaskStore) Update(ctx context.Context, task *MigrationTask) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(task).
		WherePK().
		Exec(ctx))
}

func (s *MigrationTaskStore) FindByTaskID(ctx context.Context, taskID string) (*MigrationTask, error) {
	var task MigrationTask
	err := s.db.Operator.Core.NewSelect().
		Model(&task).
		Where("task_id = ?", taskID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *MigrationTaskStore) CreateReport(ctx context.Context, report *ProgressReport) (*ProgressReport, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(report).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *MigrationTaskStore) UpdateReport(ctx context.Context, report *ProgressReport) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(report).
		WherePK().
		Exec(ctx))
}

func (s *MigrationTaskStore) ListReports(ctx context.Context, migrationTaskID int64) ([]ProgressReport, error) {
	var reports []ProgressReport
	err := s.db.Operator.Core.NewSelect().
		Model(&reports).
		Where("migration_task_id = ?", migrationTaskID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reports, nil
}
