package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
)

// MomentRepository persists moments. Every mutating method is a single
// conditional statement and reports whether its filter still matched.
type MomentRepository interface {
	Create(ctx context.Context, params model.CreateMomentParams) (*model.Moment, error)
	FindByID(ctx context.Context, id string) (*model.Moment, error)
	FindByCreator(ctx context.Context, filter model.MomentFilter) ([]model.Moment, error)
	FindClaimCandidates(ctx context.Context, filter model.ClaimFilter) ([]model.Moment, error)
	FindFeed(ctx context.Context, filter model.FeedFilter) ([]model.FeedMoment, error)
	CountAvailableByCategory(ctx context.Context, viewerID string, now time.Time) ([]model.CategoryCount, error)
	UpdateDetails(ctx context.Context, m *model.Moment, now time.Time) (*model.Moment, error)
	// Claim reserves an available moment for callID. It is the compare-and-swap
	// that arbitrates concurrent claims.
	Claim(ctx context.Context, momentID, callID, participantID string, now time.Time) (bool, error)
	// Release clears the claim held by callID. Availability is restored only
	// while the moment is still active and unexpired.
	Release(ctx context.Context, momentID, callID string, now time.Time) (bool, error)
	IncrementCallCount(ctx context.Context, id string, now time.Time) error
	Pause(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error)
	Resume(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error)
	Cancel(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error)
	ExpireDue(ctx context.Context, now time.Time) ([]model.MomentRef, error)
	// IncrementHearts bumps the counter of an active, unexpired moment and
	// returns the resulting count; nil when the moment does not qualify.
	IncrementHearts(ctx context.Context, id string, now time.Time) (*HeartCount, error)
	DecrementHearts(ctx context.Context, id string, now time.Time) (*HeartCount, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MomentRepository
}

type HeartCount struct {
	HeartCount int            `db:"heart_count"`
	Category   model.Category `db:"category"`
}

type momentRepo struct {
	db database.DBTX
}

func NewMomentRepository(db *sqlx.DB) MomentRepository {
	return &momentRepo{db: db}
}

func (r *momentRepo) WithTx(tx *sqlx.Tx) MomentRepository {
	return &momentRepo{db: tx}
}

func (r *momentRepo) Create(ctx context.Context, p model.CreateMomentParams) (*model.Moment, error) {
	var m model.Moment
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`
		INSERT INTO moments (
			id, creator_id, category, sub_category, content, languages, schedule_type,
			activation_at, duration_minutes, expires_at, status, is_available,
			heart_count, call_count, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', TRUE, 0, 0, ?, ?)
		RETURNING *
	`), p.ID, p.CreatorID, p.Category, p.SubCategory, p.Content, p.Languages, p.ScheduleType,
		p.ActivationAt.UTC(), p.DurationMinutes, model.ExpiresAtFor(p.ActivationAt, p.DurationMinutes).UTC(),
		p.Now.UTC(), p.Now.UTC())
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *momentRepo) FindByID(ctx context.Context, id string) (*model.Moment, error) {
	var m model.Moment
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`SELECT * FROM moments WHERE id = ?`), id)
	return HandleNotFound(&m, err)
}

func (r *momentRepo) FindByCreator(ctx context.Context, filter model.MomentFilter) ([]model.Moment, error) {
	query := `SELECT * FROM moments WHERE creator_id = ?`
	args := []interface{}{filter.CreatorID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" && filter.Category != model.CategoryAll {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	moments := []model.Moment{}
	if err := r.db.SelectContext(ctx, &moments, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return moments, nil
}

const claimablePredicate = `
	status = 'active' AND is_available = TRUE AND current_call_id IS NULL
	AND expires_at > ? AND activation_at <= ? AND creator_id <> ?`

// FindClaimCandidates lists claimable moments, oldest waiting first.
func (r *momentRepo) FindClaimCandidates(ctx context.Context, filter model.ClaimFilter) ([]model.Moment, error) {
	now := filter.Now.UTC()
	query := `SELECT * FROM moments WHERE` + claimablePredicate
	args := []interface{}{now, now, filter.ParticipantID}
	if filter.Category != "" && filter.Category != model.CategoryAll {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, filter.Limit)

	moments := []model.Moment{}
	if err := r.db.SelectContext(ctx, &moments, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return moments, nil
}

func (r *momentRepo) FindFeed(ctx context.Context, filter model.FeedFilter) ([]model.FeedMoment, error) {
	now := filter.Now.UTC()
	query := `
		SELECT m.*, EXISTS (
			SELECT 1 FROM hearts h WHERE h.moment_id = m.id AND h.user_id = ?
		) AS has_hearted
		FROM moments m
		WHERE m.status = 'active' AND m.is_available = TRUE AND m.expires_at > ? AND m.creator_id <> ?`
	args := []interface{}{filter.ViewerID, now, filter.ViewerID}
	if filter.Category != "" && filter.Category != model.CategoryAll {
		query += ` AND m.category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	feed := []model.FeedMoment{}
	if err := r.db.SelectContext(ctx, &feed, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return feed, nil
}

func (r *momentRepo) CountAvailableByCategory(ctx context.Context, viewerID string, now time.Time) ([]model.CategoryCount, error) {
	counts := []model.CategoryCount{}
	err := r.db.SelectContext(ctx, &counts, r.db.Rebind(`
		SELECT category, COUNT(*) AS count FROM moments
		WHERE status = 'active' AND is_available = TRUE AND expires_at > ? AND creator_id <> ?
		GROUP BY category
		ORDER BY category
	`), now.UTC(), viewerID)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *momentRepo) UpdateDetails(ctx context.Context, m *model.Moment, now time.Time) (*model.Moment, error) {
	var updated model.Moment
	err := r.db.GetContext(ctx, &updated, r.db.Rebind(`
		UPDATE moments SET
			sub_category = ?, content = ?, languages = ?, schedule_type = ?,
			activation_at = ?, duration_minutes = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND creator_id = ? AND status = 'active' AND current_call_id IS NULL
		RETURNING *
	`), m.SubCategory, m.Content, m.Languages, m.ScheduleType,
		m.ActivationAt.UTC(), m.DurationMinutes, model.ExpiresAtFor(m.ActivationAt, m.DurationMinutes).UTC(), now.UTC(),
		m.ID, m.CreatorID)
	return HandleNotFound(&updated, err)
}

func (r *momentRepo) Claim(ctx context.Context, momentID, callID, participantID string, now time.Time) (bool, error) {
	now = now.UTC()
	return applied(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE moments SET is_available = FALSE, current_call_id = ?, updated_at = ?
		WHERE id = ? AND`+claimablePredicate,
	), callID, now, momentID, now, now, participantID))
}

func (r *momentRepo) Release(ctx context.Context, momentID, callID string, now time.Time) (bool, error) {
	now = now.UTC()
	return applied(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE moments SET
			current_call_id = NULL,
			is_available = CASE WHEN status = 'active' AND expires_at > ? THEN TRUE ELSE FALSE END,
			updated_at = ?
		WHERE id = ? AND current_call_id = ?
	`), now, now, momentID, callID))
}

func (r *momentRepo) IncrementCallCount(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE moments SET call_count = call_count + 1, updated_at = ? WHERE id = ?
	`), now.UTC(), id)
	return err
}

func (r *momentRepo) Pause(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	now = now.UTC()
	var m model.Moment
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`
		UPDATE moments SET status = 'paused', is_available = FALSE, updated_at = ?
		WHERE id = ? AND creator_id = ? AND status = 'active' AND expires_at > ?
		RETURNING *
	`), now, id, creatorID, now)
	return HandleNotFound(&m, err)
}

func (r *momentRepo) Resume(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	now = now.UTC()
	var m model.Moment
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`
		UPDATE moments SET
			status = 'active',
			is_available = CASE WHEN current_call_id IS NULL THEN TRUE ELSE FALSE END,
			updated_at = ?
		WHERE id = ? AND creator_id = ? AND status = 'paused' AND expires_at > ?
		RETURNING *
	`), now, id, creatorID, now)
	return HandleNotFound(&m, err)
}

func (r *momentRepo) Cancel(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	var m model.Moment
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`
		UPDATE moments SET status = 'cancelled', is_available = FALSE, current_call_id = NULL, updated_at = ?
		WHERE id = ? AND creator_id = ? AND status IN ('active', 'paused')
		RETURNING *
	`), now.UTC(), id, creatorID)
	return HandleNotFound(&m, err)
}

// ExpireDue marks every active moment whose expiry has passed. It leaves
// current_call_id untouched so an in-progress call can still finish.
func (r *momentRepo) ExpireDue(ctx context.Context, now time.Time) ([]model.MomentRef, error) {
	now = now.UTC()
	refs := []model.MomentRef{}
	err := r.db.SelectContext(ctx, &refs, r.db.Rebind(`
		UPDATE moments SET status = 'expired', is_available = FALSE, updated_at = ?
		WHERE status = 'active' AND expires_at <= ?
		RETURNING id, category
	`), now, now)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *momentRepo) IncrementHearts(ctx context.Context, id string, now time.Time) (*HeartCount, error) {
	now = now.UTC()
	var hc HeartCount
	err := r.db.GetContext(ctx, &hc, r.db.Rebind(`
		UPDATE moments SET heart_count = heart_count + 1, updated_at = ?
		WHERE id = ? AND status = 'active' AND expires_at > ?
		RETURNING heart_count, category
	`), now, id, now)
	return HandleNotFound(&hc, err)
}

func (r *momentRepo) DecrementHearts(ctx context.Context, id string, now time.Time) (*HeartCount, error) {
	var hc HeartCount
	err := r.db.GetContext(ctx, &hc, r.db.Rebind(`
		UPDATE moments SET
			heart_count = CASE WHEN heart_count > 0 THEN heart_count - 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?
		RETURNING heart_count, category
	`), now.UTC(), id)
	return HandleNotFound(&hc, err)
}
