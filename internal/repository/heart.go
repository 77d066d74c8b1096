package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jojo-app/realtime-server-go/internal/database"
)

// HeartRepository stores one row per (user, moment). The primary key is what
// makes a concurrent duplicate add fail instead of double counting.
type HeartRepository interface {
	Insert(ctx context.Context, userID, momentID string, now time.Time) (bool, error)
	Delete(ctx context.Context, userID, momentID string) (bool, error)
	Exists(ctx context.Context, userID, momentID string) (bool, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) HeartRepository
}

type heartRepo struct {
	db database.DBTX
}

func NewHeartRepository(db *sqlx.DB) HeartRepository {
	return &heartRepo{db: db}
}

func (r *heartRepo) WithTx(tx *sqlx.Tx) HeartRepository {
	return &heartRepo{db: tx}
}

func (r *heartRepo) Insert(ctx context.Context, userID, momentID string, now time.Time) (bool, error) {
	return applied(r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO hearts (user_id, moment_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, moment_id) DO NOTHING
	`), userID, momentID, now.UTC()))
}

func (r *heartRepo) Delete(ctx context.Context, userID, momentID string) (bool, error) {
	return applied(r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM hearts WHERE user_id = ? AND moment_id = ?
	`), userID, momentID))
}

func (r *heartRepo) Exists(ctx context.Context, userID, momentID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`
		SELECT EXISTS (SELECT 1 FROM hearts WHERE user_id = ? AND moment_id = ?)
	`), userID, momentID)
	return exists, err
}
