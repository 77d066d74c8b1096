package model

import "time"

const (
	MinRating = 1
	MaxRating = 5

	MinReportDescription = 10
	MaxReportDescription = 1000
)

type Review struct {
	ID         string     `db:"id" json:"id"`
	CallID     string     `db:"call_id" json:"callId"`
	FromUserID string     `db:"from_user_id" json:"fromUserId"`
	ToUserID   string     `db:"to_user_id" json:"toUserId"`
	Rating     int        `db:"rating" json:"rating"`
	Type       ReviewType `db:"type" json:"type"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

type CreateReviewParams struct {
	ID         string
	CallID     string
	FromUserID string
	ToUserID   string
	Rating     int
	Type       ReviewType
	Now        time.Time
}

type Report struct {
	ID           string       `db:"id" json:"id"`
	CallID       string       `db:"call_id" json:"callId"`
	ReportedBy   string       `db:"reported_by" json:"reportedBy"`
	ReportedUser string       `db:"reported_user" json:"reportedUser"`
	IssueType    IssueType    `db:"issue_type" json:"issueType"`
	Description  string       `db:"description" json:"description"`
	Status       ReportStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

type CreateReportParams struct {
	ID           string
	CallID       string
	ReportedBy   string
	ReportedUser string
	IssueType    IssueType
	Description  string
	Now          time.Time
}
