package model

import "time"

type Call struct {
	ID            string     `db:"id" json:"id"`
	MomentID      string     `db:"moment_id" json:"momentId"`
	CreatorID     string     `db:"creator_id" json:"creatorId"`
	ParticipantID string     `db:"participant_id" json:"participantId"`
	Category      Category   `db:"category" json:"category"`
	Status        CallStatus `db:"status" json:"status"`
	StartTime     *time.Time `db:"start_time" json:"startTime,omitempty"`
	EndTime       *time.Time `db:"end_time" json:"endTime,omitempty"`
	// Duration is in whole seconds and never exceeds the call cap.
	Duration     int       `db:"duration" json:"duration"`
	ReportReason *string   `db:"report_reason" json:"reportReason,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Participants returns the two identities that receive call status events.
func (c *Call) Participants() []string {
	return []string{c.CreatorID, c.ParticipantID}
}

func (c *Call) Involves(identityID string) bool {
	return identityID != "" && (c.CreatorID == identityID || c.ParticipantID == identityID)
}

// OtherParty returns the identity on the opposite side of the call from
// identityID.
func (c *Call) OtherParty(identityID string) string {
	if c.CreatorID == identityID {
		return c.ParticipantID
	}
	return c.CreatorID
}

// CappedDuration clips the elapsed time between start and end to max, in
// whole seconds.
func CappedDuration(start, end time.Time, max time.Duration) int {
	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > max {
		elapsed = max
	}
	return int(elapsed / time.Second)
}

type CreateCallParams struct {
	ID            string
	MomentID      string
	CreatorID     string
	ParticipantID string
	Category      Category
	Now           time.Time
}
