package model

import "time"

type Type string

const (
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
)

type Category string

const (
	CategoryWorkflow    Category = "workflow"
	CategorySystem      Category = "system"
	CategoryPerformance Category = "performance"
	CategorySecurity    Category = "security"
	CategoryUser        Category = "user"
	CategoryBusiness    Category = "business"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the position of p in the fixed order
// [critical, high, medium, low]. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func (p Priority) Valid() bool {
	return p.Rank() < 4
}

func (t Type) Valid() bool {
	switch t {
	case TypeError, TypeWarning, TypeInfo, TypeSuccess:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	switch c {
	case CategoryWorkflow, CategorySystem, CategoryPerformance,
		CategorySecurity, CategoryUser, CategoryBusiness:
		return true
	}
	return false
}

type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// Notification is immutable once built; the engine only decides
// membership in result sets, it never rewrites a record.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Category  Category  `json:"category"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
}

type UserSession struct {
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (s *UserSession) HasPermission(perm string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type WorkflowContext struct {
	WorkflowID string  `json:"workflow_id"`
	Phase      string  `json:"phase"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
}

type SystemStatus string

const (
	SystemHealthy     SystemStatus = "healthy"
	SystemDegraded    SystemStatus = "degraded"
	SystemUnhealthy   SystemStatus = "unhealthy"
	SystemMaintenance SystemStatus = "maintenance"
)

type SystemContext struct {
	Status      SystemStatus `json:"status"`
	Load        float64      `json:"load"`
	MemoryUsage float64      `json:"memory_usage"`
	ErrorRate   float64      `json:"error_rate"`
}

type TimeContext struct {
	Hour            int  `json:"hour"`
	DayOfWeek       int  `json:"day_of_week"`
	IsBusinessHours bool `json:"is_business_hours"`
	IsWeekend       bool `json:"is_weekend"`
}

type HistoryContext struct {
	RecentNotifications   []Notification       `json:"recent_notifications,omitempty"`
	EngagementByCategory  map[Category]float64 `json:"engagement_by_category,omitempty"`
	PreferencesByCategory map[Category]bool    `json:"preferences_by_category,omitempty"`
}

// ContextSnapshot is supplied by the caller on every invocation. Any
// sub-record may be nil; a missing sub-record contributes zero to the
// score dimension that reads it.
type ContextSnapshot struct {
	UserSession *UserSession     `json:"user_session,omitempty"`
	Workflow    *WorkflowContext `json:"workflow,omitempty"`
	System      *SystemContext   `json:"system,omitempty"`
	Time        *TimeContext     `json:"time,omitempty"`
	History     *HistoryContext  `json:"history,omitempty"`
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r *TimeRange) Contains(ts time.Time) bool {
	if r == nil {
		return true
	}
	if !r.Start.IsZero() && ts.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && ts.After(r.End) {
		return false
	}
	return true
}

// QuietHours spans StartHour..EndHour by hour of day; a window wrapping
// past midnight (e.g. 22..6) is supported.
type QuietHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

func (q *QuietHours) Contains(hour int) bool {
	if q == nil || !q.Enabled {
		return false
	}
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}

type UserPreferences struct {
	Categories    map[Category]bool     `json:"categories,omitempty"`
	Types         map[Type]bool         `json:"types,omitempty"`
	MinPriority   map[Category]Priority `json:"min_priority,omitempty"`
	QuietHours    *QuietHours           `json:"quiet_hours,omitempty"`
	AlwaysInclude []string              `json:"always_include,omitempty"`
	AlwaysExclude []string              `json:"always_exclude,omitempty"`
	MaxPerHour    int                   `json:"max_per_hour,omitempty"`
}

type FilterCriteria struct {
	Priorities  []Priority       `json:"priorities,omitempty"`
	Categories  []Category       `json:"categories,omitempty"`
	Types       []Type           `json:"types,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
	TimeRange   *TimeRange       `json:"time_range,omitempty"`
	Preferences *UserPreferences `json:"preferences,omitempty"`

	// DeliveryHour is the hour-of-day the batch would be delivered at.
	// Quiet hours are judged against it when set; otherwise against each
	// notification's creation hour.
	DeliveryHour *int `json:"delivery_hour,omitempty"`
}

type FilterStats struct {
	Total         int     `json:"total"`
	Included      int     `json:"included"`
	Excluded      int     `json:"excluded"`
	InclusionRate float64 `json:"inclusion_rate"`
}

type FilterResult struct {
	Included         []Notification      `json:"included"`
	Excluded         []Notification      `json:"excluded"`
	Stats            FilterStats         `json:"stats"`
	ExclusionReasons map[string][]string `json:"exclusion_reasons,omitempty"`
}

type CategoryEngagement struct {
	Rate             float64       `json:"rate"`
	MeanResponseTime time.Duration `json:"mean_response_time"`
}

// UserBehaviorPattern is derived from notification history and cached
// per user. It is recomputed on cache miss and invalidated explicitly,
// never silently expired.
type UserBehaviorPattern struct {
	UserID              string                          `json:"user_id"`
	PreferredHours      []int                           `json:"preferred_hours,omitempty"`
	PreferredCategories []Category                      `json:"preferred_categories,omitempty"`
	PreferredTypes      []Type                          `json:"preferred_types,omitempty"`
	Engagement          map[Category]CategoryEngagement `json:"engagement,omitempty"`
	FatigueCount        int                             `json:"fatigue_count"`
	MeanGap             time.Duration                   `json:"mean_gap"`
	LastEngagedAt       time.Time                       `json:"last_engaged_at"`
	AnalyzedAt          time.Time                       `json:"analyzed_at"`
}

func (p UserBehaviorPattern) PrefersCategory(c Category) bool {
	for _, pc := range p.PreferredCategories {
		if pc == c {
			return true
		}
	}
	return false
}

func (p UserBehaviorPattern) PrefersType(t Type) bool {
	for _, pt := range p.PreferredTypes {
		if pt == t {
			return true
		}
	}
	return false
}

type PipelineStats struct {
	Total         int     `json:"total"`
	Filtered      int     `json:"filtered"`
	InclusionRate float64 `json:"inclusion_rate"`
	MLConfidence  float64 `json:"ml_confidence"`
	Degraded      bool    `json:"degraded,omitempty"`
}

type PipelineResult struct {
	Notifications   []Notification      `json:"notifications"`
	Stats           PipelineStats       `json:"stats"`
	Explanations    map[string][]string `json:"explanations,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
}
