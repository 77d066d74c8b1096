package model

type IdentityKind string

const (
	IdentityAuthenticated IdentityKind = "authenticated"
	IdentityGuest         IdentityKind = "guest"
)

type Category string

const (
	CategoryWishes       Category = "wishes"
	CategoryMotivation   Category = "motivation"
	CategorySongs        Category = "songs"
	CategoryBlessings    Category = "blessings"
	CategoryCelebrations Category = "celebrations"

	// CategoryAll matches every category when claiming or filtering, and names
	// the catch-all room.
	CategoryAll Category = "all"
)

var Categories = []Category{
	CategoryWishes,
	CategoryMotivation,
	CategorySongs,
	CategoryBlessings,
	CategoryCelebrations,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ValidFilter reports whether c is a concrete category or the "all" wildcard.
func (c Category) ValidFilter() bool {
	return c == CategoryAll || c.Valid()
}

var Languages = []string{
	"english", "hindi", "spanish", "french", "german", "japanese", "chinese",
}

func ValidLanguage(lang string) bool {
	for _, known := range Languages {
		if lang == known {
			return true
		}
	}
	return false
}

type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleLater     ScheduleType = "later"
)

type MomentStatus string

const (
	MomentStatusActive    MomentStatus = "active"
	MomentStatusPaused    MomentStatus = "paused"
	MomentStatusExpired   MomentStatus = "expired"
	MomentStatusCancelled MomentStatus = "cancelled"
)

var MomentStatuses = []MomentStatus{
	MomentStatusActive,
	MomentStatusPaused,
	MomentStatusExpired,
	MomentStatusCancelled,
}

// Terminal reports whether no further transitions are allowed.
func (s MomentStatus) Terminal() bool {
	return s == MomentStatusExpired || s == MomentStatusCancelled
}

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusConnected CallStatus = "connected"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
	CallStatusReported  CallStatus = "reported"
)

// InFlight reports whether the call may still be ended, failed or reported.
func (s CallStatus) InFlight() bool {
	return s == CallStatusInitiated || s == CallStatusConnected
}

var ValidDurations = []int{30, 60, 90, 120}

func ValidDuration(minutes int) bool {
	for _, d := range ValidDurations {
		if minutes == d {
			return true
		}
	}
	return false
}

type IssueType string

const (
	IssueHarassment           IssueType = "harassment"
	IssueSpam                 IssueType = "spam"
	IssueInappropriateContent IssueType = "inappropriate_content"
	IssueFakeProfile          IssueType = "fake_profile"
	IssueOther                IssueType = "other"
)

var IssueTypes = []IssueType{
	IssueHarassment,
	IssueSpam,
	IssueInappropriateContent,
	IssueFakeProfile,
	IssueOther,
}

type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
	ReportResolved ReportStatus = "resolved"
)

// ReviewType records which side of the call wrote the review.
type ReviewType string

const (
	ReviewByCreator     ReviewType = "creator"
	ReviewByParticipant ReviewType = "participant"
)

// ReviewDirection selects the reviews a user wrote or the ones written about
// them.
type ReviewDirection string

const (
	ReviewsGiven    ReviewDirection = "given"
	ReviewsReceived ReviewDirection = "received"
)

var ReviewDirections = []ReviewDirection{ReviewsGiven, ReviewsReceived}
