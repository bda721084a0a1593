package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"notigate/internal/model"
	"notigate/internal/predict"
)

// RuleFilter applies deterministic, criteria-driven filtering plus the
// trailing relevance/duplicate/spam gate and priority-aware rate
// limiting. It holds no per-call state; the same instance is safe for
// concurrent use.
type RuleFilter struct {
	logger         *slog.Logger
	spam           SpamDetector
	dupes          DuplicateDetector
	predictor      predict.RelevancePredictor
	relevanceFloor float64
	predictTimeout time.Duration
}

type Option func(*RuleFilter)

func WithSpamDetector(d SpamDetector) Option {
	return func(f *RuleFilter) { f.spam = d }
}

func WithDuplicateDetector(d DuplicateDetector) Option {
	return func(f *RuleFilter) { f.dupes = d }
}

func WithPredictor(p predict.RelevancePredictor, floor float64, timeout time.Duration) Option {
	return func(f *RuleFilter) {
		f.predictor = p
		f.relevanceFloor = floor
		f.predictTimeout = timeout
	}
}

func NewRuleFilter(logger *slog.Logger, opts ...Option) *RuleFilter {
	f := &RuleFilter{
		logger:         logger,
		spam:           NewPhraseSpamDetector(nil, 0),
		dupes:          NoopDuplicateDetector{},
		relevanceFloor: 0.3,
		predictTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Filter partitions notifications into included and excluded sets. A
// notification failing several tests records every failing reason, not
// just the first.
func (f *RuleFilter) Filter(notifications []model.Notification, criteria model.FilterCriteria) model.FilterResult {
	result := model.FilterResult{
		Included:         make([]model.Notification, 0, len(notifications)),
		Excluded:         make([]model.Notification, 0),
		ExclusionReasons: make(map[string][]string),
	}
	for _, n := range notifications {
		reasons := f.evaluate(n, criteria)
		if len(reasons) == 0 {
			result.Included = append(result.Included, n)
			continue
		}
		result.Excluded = append(result.Excluded, n)
		result.ExclusionReasons[n.ID] = reasons
	}
	result.Stats = stats(len(notifications), len(result.Included))
	return result
}

func (f *RuleFilter) evaluate(n model.Notification, criteria model.FilterCriteria) []string {
	var reasons []string
	if len(criteria.Priorities) > 0 && !containsPriority(criteria.Priorities, n.Priority) {
		reasons = append(reasons, fmt.Sprintf("priority %q not in allowed priorities", n.Priority))
	}
	if len(criteria.Categories) > 0 && !containsCategory(criteria.Categories, n.Category) {
		reasons = append(reasons, fmt.Sprintf("category %q not in allowed categories", n.Category))
	}
	if len(criteria.Types) > 0 && !containsType(criteria.Types, n.Type) {
		reasons = append(reasons, fmt.Sprintf("type %q not in allowed types", n.Type))
	}
	if len(criteria.Keywords) > 0 {
		if _, ok := matchKeyword(n, criteria.Keywords); !ok {
			reasons = append(reasons, "no keyword match in title or message")
		}
	}
	if criteria.TimeRange != nil && !criteria.TimeRange.Contains(n.CreatedAt) {
		reasons = append(reasons, "created outside allowed time range")
	}
	hour := n.CreatedAt.Hour()
	if criteria.DeliveryHour != nil {
		hour = *criteria.DeliveryHour
	}
	reasons = append(reasons, preferenceReasons(n, criteria.Preferences, hour)...)
	return reasons
}

// preferenceReasons applies the per-user rules at the given delivery
// hour. An always-include keyword overrides quiet hours only; an
// always-exclude keyword excludes unconditionally, including over
// always-include.
func preferenceReasons(n model.Notification, prefs *model.UserPreferences, hour int) []string {
	if prefs == nil {
		return nil
	}
	var reasons []string
	if kw, ok := matchKeyword(n, prefs.AlwaysExclude); ok {
		reasons = append(reasons, fmt.Sprintf("matches always-exclude keyword %q", kw))
	}
	if enabled, ok := prefs.Categories[n.Category]; ok && !enabled {
		reasons = append(reasons, fmt.Sprintf("category %q disabled by user preferences", n.Category))
	}
	if enabled, ok := prefs.Types[n.Type]; ok && !enabled {
		reasons = append(reasons, fmt.Sprintf("type %q disabled by user preferences", n.Type))
	}
	if min, ok := prefs.MinPriority[n.Category]; ok && n.Priority.Rank() > min.Rank() {
		reasons = append(reasons, fmt.Sprintf("priority %q below user minimum %q for category %q", n.Priority, min, n.Category))
	}
	if prefs.QuietHours.Contains(hour) {
		if _, ok := matchKeyword(n, prefs.AlwaysInclude); !ok {
			reasons = append(reasons, "suppressed during quiet hours")
		}
	}
	return reasons
}

// FilterByPriority keeps notifications at or above maxPriority under
// the fixed order [critical, high, medium, low].
func (f *RuleFilter) FilterByPriority(notifications []model.Notification, maxPriority model.Priority) []model.Notification {
	limit := maxPriority.Rank()
	out := make([]model.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.Priority.Rank() <= limit {
			out = append(out, n)
		}
	}
	return out
}

// ApplyRateLimit sorts by (priority rank, created_at) and, when more
// than maxPerHour notifications fall inside the trailing hour, returns
// only the first maxPerHour entries of the sorted list.
func (f *RuleFilter) ApplyRateLimit(notifications []model.Notification, maxPerHour int) []model.Notification {
	sorted := SortByPriority(notifications)
	if maxPerHour <= 0 {
		return sorted
	}
	cutoff := time.Now().Add(-time.Hour)
	recent := 0
	for _, n := range sorted {
		if n.CreatedAt.After(cutoff) {
			recent++
		}
	}
	if recent <= maxPerHour {
		return sorted
	}
	return sorted[:maxPerHour]
}

// SortByPriority orders notifications by priority rank ascending, then
// created_at ascending. The input slice is not modified.
func SortByPriority(notifications []model.Notification) []model.Notification {
	sorted := make([]model.Notification, len(notifications))
	copy(sorted, notifications)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Priority.Rank(), sorted[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// ApplyContentGate runs the trailing relevance/duplicate/spam checks.
// A predictor error or timeout passes the notification through rather
// than dropping it.
func (f *RuleFilter) ApplyContentGate(ctx context.Context, notifications []model.Notification, snapshot model.ContextSnapshot) model.FilterResult {
	result := model.FilterResult{
		Included:         make([]model.Notification, 0, len(notifications)),
		Excluded:         make([]model.Notification, 0),
		ExclusionReasons: make(map[string][]string),
	}
	for _, n := range notifications {
		var reasons []string
		if f.predictor != nil {
			if score, ok := f.predictScore(ctx, n, snapshot); ok && score < f.relevanceFloor {
				reasons = append(reasons, fmt.Sprintf("predicted relevance %.2f below %.2f", score, f.relevanceFloor))
			}
		}
		if f.dupes != nil && f.dupes.IsDuplicate(n) {
			reasons = append(reasons, "duplicate of a recently seen notification")
		}
		if f.spam != nil && f.spam.IsSpam(n) {
			reasons = append(reasons, "matches spam heuristics")
		}
		if len(reasons) == 0 {
			result.Included = append(result.Included, n)
			continue
		}
		result.Excluded = append(result.Excluded, n)
		result.ExclusionReasons[n.ID] = reasons
	}
	result.Stats = stats(len(notifications), len(result.Included))
	return result
}

func (f *RuleFilter) predictScore(ctx context.Context, n model.Notification, snapshot model.ContextSnapshot) (float64, bool) {
	callCtx, cancel := context.WithTimeout(ctx, f.predictTimeout)
	defer cancel()
	score, err := f.predictor.Predict(callCtx, n, snapshot)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("predictor error, passing notification through", "id", n.ID, "err", err)
		}
		return 0, false
	}
	return score, true
}

func stats(total, included int) model.FilterStats {
	s := model.FilterStats{
		Total:    total,
		Included: included,
		Excluded: total - included,
	}
	if total > 0 {
		s.InclusionRate = float64(included) / float64(total)
	}
	return s
}

func matchKeyword(n model.Notification, keywords []string) (string, bool) {
	if len(keywords) == 0 {
		return "", false
	}
	haystack := strings.ToLower(n.Title + " " + n.Message)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func containsPriority(list []model.Priority, p model.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsCategory(list []model.Category, c model.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsType(list []model.Type, t model.Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
