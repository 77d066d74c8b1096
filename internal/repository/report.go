package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
)

// ReportRepository stores one report per (call, reporter). Create returns nil
// when the reporter already filed one for the call.
type ReportRepository interface {
	Create(ctx context.Context, params model.CreateReportParams) (*model.Report, error)
	FindByCall(ctx context.Context, callID string) ([]model.Report, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ReportRepository
}

type reportRepo struct {
	db database.DBTX
}

func NewReportRepository(db *sqlx.DB) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) WithTx(tx *sqlx.Tx) ReportRepository {
	return &reportRepo{db: tx}
}

func (r *reportRepo) Create(ctx context.Context, p model.CreateReportParams) (*model.Report, error) {
	var rp model.Report
	err := r.db.GetContext(ctx, &rp, r.db.Rebind(`
		INSERT INTO reports (id, call_id, reported_by, reported_user, issue_type, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT (call_id, reported_by) DO NOTHING
		RETURNING *
	`), p.ID, p.CallID, p.ReportedBy, p.ReportedUser, p.IssueType, p.Description, p.Now.UTC(), p.Now.UTC())
	return HandleNotFound(&rp, err)
}

func (r *reportRepo) FindByCall(ctx context.Context, callID string) ([]model.Report, error) {
	reports := []model.Report{}
	err := r.db.SelectContext(ctx, &reports, r.db.Rebind(`
		SELECT * FROM reports WHERE call_id = ? ORDER BY created_at, id
	`), callID)
	if err != nil {
		return nil, err
	}
	return reports, nil
}
