package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Moment struct {
	ID              string       `db:"id" json:"id"`
	CreatorID       string       `db:"creator_id" json:"creatorId"`
	Category        Category     `db:"category" json:"category"`
	SubCategory     string       `db:"sub_category" json:"subCategory"`
	Content         string       `db:"content" json:"content"`
	Languages       LanguageSet  `db:"languages" json:"languages"`
	ScheduleType    ScheduleType `db:"schedule_type" json:"scheduleType"`
	ActivationAt    time.Time    `db:"activation_at" json:"activationAt"`
	DurationMinutes int          `db:"duration_minutes" json:"durationMinutes"`
	ExpiresAt       time.Time    `db:"expires_at" json:"expiresAt"`
	Status          MomentStatus `db:"status" json:"status"`
	IsAvailable     bool         `db:"is_available" json:"isAvailable"`
	CurrentCallID   *string      `db:"current_call_id" json:"currentCallId,omitempty"`
	HeartCount      int          `db:"heart_count" json:"heartCount"`
	CallCount       int          `db:"call_count" json:"callCount"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// ExpiresAtFor derives the expiry instant; it is never stored independently
// of activationAt and durationMinutes.
func ExpiresAtFor(activationAt time.Time, durationMinutes int) time.Time {
	return activationAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// Claimable mirrors the store-side claim predicate for a single participant.
func (m *Moment) Claimable(participantID string, now time.Time) bool {
	return m.Status == MomentStatusActive &&
		m.IsAvailable &&
		m.CurrentCallID == nil &&
		m.CreatorID != participantID &&
		!m.ActivationAt.After(now) &&
		now.Before(m.ExpiresAt)
}

// MomentRef is the minimal projection published for deletions and status
// changes.
type MomentRef struct {
	ID       string   `db:"id" json:"momentId"`
	Category Category `db:"category" json:"category"`
}

// FeedMoment is a moment as seen on the Wall of Joy by one viewer.
type FeedMoment struct {
	Moment
	HasHearted bool `db:"has_hearted" json:"hasHearted"`
}

type CategoryCount struct {
	Category Category `db:"category" json:"category"`
	Count    int      `db:"count" json:"count"`
}

type CreateMomentParams struct {
	ID              string
	CreatorID       string
	Category        Category
	SubCategory     string
	Content         string
	Languages       LanguageSet
	ScheduleType    ScheduleType
	ActivationAt    time.Time
	DurationMinutes int
	Now             time.Time
}

type UpdateMomentParams struct {
	SubCategory     *string
	Content         *string
	Languages       LanguageSet
	ActivationAt    *time.Time
	DurationMinutes *int
}

type MomentFilter struct {
	CreatorID string
	Status    MomentStatus
	Category  Category
}

type FeedFilter struct {
	ViewerID string
	Category Category
	Now      time.Time
	Limit    int
	Offset   int
}

// ClaimFilter selects candidates for a participant. Category may be
// CategoryAll.
type ClaimFilter struct {
	ParticipantID string
	Category      Category
	Now           time.Time
	Limit         int
}

// LanguageSet is stored as a JSON array so the same column works on every
// supported SQL dialect.
type LanguageSet []string

func (l LanguageSet) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *LanguageSet) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = LanguageSet{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan languages: unsupported type %T", src)
	}
	var langs []string
	if err := json.Unmarshal(data, &langs); err != nil {
		return fmt.Errorf("scan languages: %w", err)
	}
	*l = langs
	return nil
}
