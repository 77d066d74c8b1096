package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
)

// ReviewRepository stores at most one review per (call, author). Create
// returns nil when the author already reviewed the call.
type ReviewRepository interface {
	Create(ctx context.Context, params model.CreateReviewParams) (*model.Review, error)
	FindGiven(ctx context.Context, userID string, limit, offset int) ([]model.Review, error)
	CountGiven(ctx context.Context, userID string) (int, error)
	FindReceived(ctx context.Context, userID string, limit, offset int) ([]model.Review, error)
	CountReceived(ctx context.Context, userID string) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ReviewRepository
}

type reviewRepo struct {
	db database.DBTX
}

func NewReviewRepository(db *sqlx.DB) ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) WithTx(tx *sqlx.Tx) ReviewRepository {
	return &reviewRepo{db: tx}
}

func (r *reviewRepo) Create(ctx context.Context, p model.CreateReviewParams) (*model.Review, error) {
	var rv model.Review
	err := r.db.GetContext(ctx, &rv, r.db.Rebind(`
		INSERT INTO reviews (id, call_id, from_user_id, to_user_id, rating, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (call_id, from_user_id) DO NOTHING
		RETURNING *
	`), p.ID, p.CallID, p.FromUserID, p.ToUserID, p.Rating, p.Type, p.Now.UTC(), p.Now.UTC())
	return HandleNotFound(&rv, err)
}

func (r *reviewRepo) FindGiven(ctx context.Context, userID string, limit, offset int) ([]model.Review, error) {
	return r.find(ctx, "from_user_id", userID, limit, offset)
}

func (r *reviewRepo) FindReceived(ctx context.Context, userID string, limit, offset int) ([]model.Review, error) {
	return r.find(ctx, "to_user_id", userID, limit, offset)
}

func (r *reviewRepo) CountGiven(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, "from_user_id", userID)
}

func (r *reviewRepo) CountReceived(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, "to_user_id", userID)
}

// column is always one of the two constants above, never caller input.
func (r *reviewRepo) find(ctx context.Context, column, userID string, limit, offset int) ([]model.Review, error) {
	reviews := []model.Review{}
	err := r.db.SelectContext(ctx, &reviews, r.db.Rebind(`
		SELECT * FROM reviews
		WHERE `+column+` = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepo) count(ctx context.Context, column, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM reviews WHERE `+column+` = ?`), userID)
	return count, err
}
