package model

import "time"

// ScheduleEntry is the plan for one calendar date: which slot, which template,
// and the concrete instant inside the slot window.
type ScheduleEntry struct {
	ID            string         `json:"id"`
	ScheduleDate  string         `json:"schedule_date"` // YYYY-MM-DD, unique
	SlotID        string         `json:"time_slot_id"`
	TemplateID    string         `json:"template_id"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	Status        ScheduleStatus `json:"status"`
	PostID        string         `json:"post_id,omitempty"`
	UCBScore      float64        `json:"ucb_score"`
	Label         SelectionLabel `json:"label"`
	Rationale     string         `json:"rationale"`
	ExecutedAt    *time.Time     `json:"executed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Metrics are the engagement counters reported for a post.
type Metrics struct {
	Views   int64 `json:"views"`
	Likes   int64 `json:"likes"`
	Replies int64 `json:"replies"`
	Reposts int64 `json:"reposts"`
	Quotes  int64 `json:"quotes"`
	Shares  int64 `json:"shares"`
}

// Interactions sums every engagement counter except views.
func (m Metrics) Interactions() int64 {
	return m.Likes + m.Replies + m.Reposts + m.Quotes + m.Shares
}

// EngagementRate returns interactions over views as a percentage.
// Zero views yields zero.
func (m Metrics) EngagementRate() float64 {
	if m.Views <= 0 {
		return 0
	}
	return 100 * float64(m.Interactions()) / float64(m.Views)
}

// PerformanceRecord tracks one generated post and the selection that produced it.
// It is created with zero metrics and later updated in place by feedback.
type PerformanceRecord struct {
	ID             string         `json:"id"`
	PostID         string         `json:"post_id"`
	ScheduleID     string         `json:"schedule_id"`
	TemplateID     string         `json:"template_id"`
	SlotID         string         `json:"time_slot_id"`
	PostedAt       time.Time      `json:"posted_at"`
	PostedHour     int            `json:"posted_hour"`
	PostedMinute   int            `json:"posted_minute"`
	PostedWeekday  time.Weekday   `json:"posted_weekday"`
	Metrics        Metrics        `json:"metrics"`
	EngagementRate float64        `json:"engagement_rate"`
	UCBScore       float64        `json:"ucb_score"`
	Label          SelectionLabel `json:"label"`
	Rationale      string         `json:"rationale"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewPerformanceRecord builds the zero-metric record for an entry whose post
// was generated. The posted hour, minute and weekday are read in loc, the zone
// the entry's slot window was planned in; nil means UTC.
func NewPerformanceRecord(id string, e *ScheduleEntry, loc *time.Location, now time.Time) *PerformanceRecord {
	if loc == nil {
		loc = time.UTC
	}
	posted := e.ScheduledTime.In(loc)
	return &PerformanceRecord{
		ID:            id,
		PostID:        e.PostID,
		ScheduleID:    e.ID,
		TemplateID:    e.TemplateID,
		SlotID:        e.SlotID,
		PostedAt:      posted,
		PostedHour:    posted.Hour(),
		PostedMinute:  posted.Minute(),
		PostedWeekday: posted.Weekday(),
		UCBScore:      e.UCBScore,
		Label:         e.Label,
		Rationale:     e.Rationale,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
