package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
)

// CallRepository persists calls. Status transitions are conditional on the
// call still being in flight and return nil when it no longer is.
type CallRepository interface {
	Create(ctx context.Context, params model.CreateCallParams) (*model.Call, error)
	FindByID(ctx context.Context, id string) (*model.Call, error)
	FindInFlightByMoment(ctx context.Context, momentID string) (*model.Call, error)
	FindHistory(ctx context.Context, identityID string, limit, offset int) ([]model.Call, error)
	CountHistory(ctx context.Context, identityID string) (int, error)
	MarkConnected(ctx context.Context, id string, start time.Time) (*model.Call, error)
	Complete(ctx context.Context, id string, end time.Time, duration int) (*model.Call, error)
	Fail(ctx context.Context, id string, end time.Time) (*model.Call, error)
	Report(ctx context.Context, id, reason string, end time.Time) (*model.Call, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) CallRepository
}

type callRepo struct {
	db database.DBTX
}

func NewCallRepository(db *sqlx.DB) CallRepository {
	return &callRepo{db: db}
}

func (r *callRepo) WithTx(tx *sqlx.Tx) CallRepository {
	return &callRepo{db: tx}
}

func (r *callRepo) Create(ctx context.Context, p model.CreateCallParams) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		INSERT INTO calls (id, moment_id, creator_id, participant_id, category, status, duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'initiated', 0, ?, ?)
		RETURNING *
	`), p.ID, p.MomentID, p.CreatorID, p.ParticipantID, p.Category, p.Now.UTC(), p.Now.UTC())
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *callRepo) FindByID(ctx context.Context, id string) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT * FROM calls WHERE id = ?`), id)
	return HandleNotFound(&c, err)
}

func (r *callRepo) FindInFlightByMoment(ctx context.Context, momentID string) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		SELECT * FROM calls
		WHERE moment_id = ? AND status IN ('initiated', 'connected')
		ORDER BY created_at DESC
		LIMIT 1
	`), momentID)
	return HandleNotFound(&c, err)
}

func (r *callRepo) FindHistory(ctx context.Context, identityID string, limit, offset int) ([]model.Call, error) {
	calls := []model.Call{}
	err := r.db.SelectContext(ctx, &calls, r.db.Rebind(`
		SELECT * FROM calls
		WHERE (creator_id = ? OR participant_id = ?) AND status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`), identityID, identityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return calls, nil
}

func (r *callRepo) CountHistory(ctx context.Context, identityID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM calls
		WHERE (creator_id = ? OR participant_id = ?) AND status = 'completed'
	`), identityID, identityID)
	return count, err
}

func (r *callRepo) MarkConnected(ctx context.Context, id string, start time.Time) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		UPDATE calls SET status = 'connected', start_time = ?, updated_at = ?
		WHERE id = ? AND status = 'initiated'
		RETURNING *
	`), start.UTC(), start.UTC(), id)
	return HandleNotFound(&c, err)
}

func (r *callRepo) Complete(ctx context.Context, id string, end time.Time, duration int) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		UPDATE calls SET status = 'completed', end_time = ?, duration = ?, updated_at = ?
		WHERE id = ? AND status IN ('initiated', 'connected')
		RETURNING *
	`), end.UTC(), duration, end.UTC(), id)
	return HandleNotFound(&c, err)
}

func (r *callRepo) Fail(ctx context.Context, id string, end time.Time) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		UPDATE calls SET status = 'failed', end_time = ?, updated_at = ?
		WHERE id = ? AND status IN ('initiated', 'connected')
		RETURNING *
	`), end.UTC(), end.UTC(), id)
	return HandleNotFound(&c, err)
}

func (r *callRepo) Report(ctx context.Context, id, reason string, end time.Time) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		UPDATE calls SET status = 'reported', report_reason = ?, end_time = ?, updated_at = ?
		WHERE id = ? AND status IN ('initiated', 'connected')
		RETURNING *
	`), reason, end.UTC(), end.UTC(), id)
	return HandleNotFound(&c, err)
}
