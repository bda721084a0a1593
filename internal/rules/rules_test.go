package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"notigate/internal/model"
	"notigate/internal/predict"
)

func note(id string, p model.Priority, c model.Category, ty model.Type, age time.Duration) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		Message:   "message " + id,
		Type:      ty,
		Category:  c,
		Priority:  p,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestFilterPartitionLaw(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("a", model.PriorityCritical, model.CategorySystem, model.TypeError, time.Minute),
		note("b", model.PriorityLow, model.CategoryBusiness, model.TypeInfo, time.Hour),
		note("c", model.PriorityHigh, model.CategorySecurity, model.TypeWarning, 2*time.Hour),
		note("d", model.PriorityMedium, model.CategoryUser, model.TypeSuccess, time.Minute),
	}
	criteria := model.FilterCriteria{
		Priorities: []model.Priority{model.PriorityCritical, model.PriorityHigh},
	}
	res := f.Filter(input, criteria)
	if len(res.Included)+len(res.Excluded) != len(input) {
		t.Fatalf("partition lost notifications: %d + %d != %d", len(res.Included), len(res.Excluded), len(input))
	}
	seen := map[string]int{}
	for _, n := range res.Included {
		seen[n.ID]++
	}
	for _, n := range res.Excluded {
		seen[n.ID]++
	}
	for _, n := range input {
		if seen[n.ID] != 1 {
			t.Fatalf("notification %s appears %d times across included/excluded", n.ID, seen[n.ID])
		}
	}
	for _, n := range res.Included {
		if _, ok := res.ExclusionReasons[n.ID]; ok {
			t.Fatalf("included notification %s has exclusion reasons", n.ID)
		}
	}
	for _, n := range res.Excluded {
		if len(res.ExclusionReasons[n.ID]) == 0 {
			t.Fatalf("excluded notification %s has no exclusion reason", n.ID)
		}
	}
}

func TestFilterRecordsAllFailingReasons(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("a", model.PriorityLow, model.CategoryBusiness, model.TypeInfo, time.Minute),
	}
	criteria := model.FilterCriteria{
		Priorities: []model.Priority{model.PriorityCritical},
		Categories: []model.Category{model.CategorySystem},
	}
	res := f.Filter(input, criteria)
	if len(res.ExclusionReasons["a"]) != 2 {
		t.Fatalf("expected 2 reasons, got %v", res.ExclusionReasons["a"])
	}
}

func TestFilterStatsEmptyInput(t *testing.T) {
	f := NewRuleFilter(nil)
	res := f.Filter(nil, model.FilterCriteria{})
	if res.Stats.InclusionRate != 0 {
		t.Fatalf("expected inclusion rate 0 for empty input, got %v", res.Stats.InclusionRate)
	}
}

func TestFilterByPriority(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("crit", model.PriorityCritical, model.CategorySystem, model.TypeError, 0),
		note("high", model.PriorityHigh, model.CategorySystem, model.TypeError, 0),
		note("med", model.PriorityMedium, model.CategorySystem, model.TypeError, 0),
		note("low", model.PriorityLow, model.CategorySystem, model.TypeError, 0),
	}
	out := f.FilterByPriority(input, model.PriorityHigh)
	if len(out) != 2 {
		t.Fatalf("expected 2 notifications at or above high, got %d", len(out))
	}
	for _, n := range out {
		if n.Priority.Rank() > model.PriorityHigh.Rank() {
			t.Fatalf("notification %s has priority %s below high", n.ID, n.Priority)
		}
	}
}

func TestApplyRateLimitUnderLimit(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("b", model.PriorityLow, model.CategoryUser, model.TypeInfo, 10*time.Minute),
		note("a", model.PriorityCritical, model.CategorySystem, model.TypeError, 5*time.Minute),
	}
	out := f.ApplyRateLimit(input, 10)
	if len(out) != 2 {
		t.Fatalf("expected full list, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected priority order [a b], got [%s %s]", out[0].ID, out[1].ID)
	}
}

func TestApplyRateLimitOverLimit(t *testing.T) {
	f := NewRuleFilter(nil)
	input := make([]model.Notification, 0, 20)
	for i := 0; i < 20; i++ {
		p := model.PriorityMedium
		if i%4 == 0 {
			p = model.PriorityHigh
		}
		n := note("", p, model.CategoryWorkflow, model.TypeInfo, time.Duration(i)*time.Minute)
		n.ID = string(rune('a' + i))
		input = append(input, n)
	}
	out := f.ApplyRateLimit(input, 10)
	if len(out) != 10 {
		t.Fatalf("expected exactly 10, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.Priority.Rank() > cur.Priority.Rank() {
			t.Fatalf("priority order violated at %d", i)
		}
		if prev.Priority.Rank() == cur.Priority.Rank() && prev.CreatedAt.After(cur.CreatedAt) {
			t.Fatalf("created_at order violated at %d", i)
		}
	}
}

func TestPreferenceDisabledCategory(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("biz", model.PriorityLow, model.CategoryBusiness, model.TypeInfo, time.Minute),
	}
	criteria := model.FilterCriteria{
		Preferences: &model.UserPreferences{
			Categories: map[model.Category]bool{model.CategoryBusiness: false},
		},
	}
	res := f.Filter(input, criteria)
	if len(res.Excluded) != 1 {
		t.Fatalf("expected exclusion")
	}
	reasons := res.ExclusionReasons["biz"]
	found := false
	for _, r := range reasons {
		if strings.Contains(r, "disabled") && strings.Contains(r, "business") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a disabled-category reason, got %v", reasons)
	}
}

func TestPreferenceMinPriority(t *testing.T) {
	f := NewRuleFilter(nil)
	input := []model.Notification{
		note("low", model.PriorityLow, model.CategorySystem, model.TypeInfo, time.Minute),
		note("crit", model.PriorityCritical, model.CategorySystem, model.TypeError, time.Minute),
	}
	criteria := model.FilterCriteria{
		Preferences: &model.UserPreferences{
			MinPriority: map[model.Category]model.Priority{model.CategorySystem: model.PriorityHigh},
		},
	}
	res := f.Filter(input, criteria)
	if len(res.Included) != 1 || res.Included[0].ID != "crit" {
		t.Fatalf("expected only crit included, got %v", res.Included)
	}
}

func TestQuietHoursAlwaysIncludeOverride(t *testing.T) {
	f := NewRuleFilter(nil)
	quiet := model.Notification{
		ID:        "q",
		Title:     "routine update",
		Message:   "nothing special",
		Type:      model.TypeInfo,
		Category:  model.CategoryUser,
		Priority:  model.PriorityMedium,
		CreatedAt: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
	}
	urgent := quiet
	urgent.ID = "u"
	urgent.Title = "production outage detected"
	criteria := model.FilterCriteria{
		Preferences: &model.UserPreferences{
			QuietHours:    &model.QuietHours{Enabled: true, StartHour: 22, EndHour: 6},
			AlwaysInclude: []string{"outage"},
		},
	}
	res := f.Filter([]model.Notification{quiet, urgent}, criteria)
	if len(res.Included) != 1 || res.Included[0].ID != "u" {
		t.Fatalf("expected only the always-include keyword to survive quiet hours, got %v", res.Included)
	}
}

func TestQuietHoursJudgedAtDeliveryHour(t *testing.T) {
	f := NewRuleFilter(nil)
	stale := model.Notification{
		ID:        "s",
		Title:     "daily summary",
		Message:   "generated at noon",
		Type:      model.TypeInfo,
		Category:  model.CategoryUser,
		Priority:  model.PriorityMedium,
		CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	prefs := &model.UserPreferences{
		QuietHours: &model.QuietHours{Enabled: true, StartHour: 22, EndHour: 6},
	}

	deliveryHour := 23
	criteria := model.FilterCriteria{Preferences: prefs, DeliveryHour: &deliveryHour}
	res := f.Filter([]model.Notification{stale}, criteria)
	if len(res.Excluded) != 1 {
		t.Fatalf("noon-created notification delivered at 23:00 must hit quiet hours")
	}

	// without a delivery hour the creation hour decides
	res = f.Filter([]model.Notification{stale}, model.FilterCriteria{Preferences: prefs})
	if len(res.Included) != 1 {
		t.Fatalf("noon creation hour is outside the quiet window: %v", res.ExclusionReasons)
	}
}

func TestAlwaysExcludeBeatsAlwaysInclude(t *testing.T) {
	f := NewRuleFilter(nil)
	n := model.Notification{
		ID:        "x",
		Title:     "outage in test environment",
		Message:   "ignore this",
		Type:      model.TypeWarning,
		Category:  model.CategorySystem,
		Priority:  model.PriorityHigh,
		CreatedAt: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
	}
	criteria := model.FilterCriteria{
		Preferences: &model.UserPreferences{
			QuietHours:    &model.QuietHours{Enabled: true, StartHour: 22, EndHour: 6},
			AlwaysInclude: []string{"outage"},
			AlwaysExclude: []string{"test environment"},
		},
	}
	res := f.Filter([]model.Notification{n}, criteria)
	if len(res.Excluded) != 1 {
		t.Fatalf("expected always-exclude to win")
	}
}

func TestPhraseSpamDetector(t *testing.T) {
	d := NewPhraseSpamDetector(nil, 2)
	spam := model.Notification{Title: "Congratulations winner!", Message: "click here to claim"}
	if !d.IsSpam(spam) {
		t.Fatalf("expected spam")
	}
	clean := model.Notification{Title: "Deploy finished", Message: "all checks passed"}
	if d.IsSpam(clean) {
		t.Fatalf("unexpected spam verdict")
	}
	single := model.Notification{Title: "winner announced", Message: "quarterly awards"}
	if d.IsSpam(single) {
		t.Fatalf("one phrase hit should not be spam")
	}
}

func TestRecentDuplicateDetector(t *testing.T) {
	d := NewRecentDuplicateDetector(time.Minute)
	n := note("n1", model.PriorityMedium, model.CategoryUser, model.TypeInfo, 0)
	if d.IsDuplicate(n) {
		t.Fatalf("first sighting should not be duplicate")
	}
	n2 := n
	n2.ID = "n2"
	if !d.IsDuplicate(n2) {
		t.Fatalf("same content should be duplicate inside the window")
	}
}

func TestContentGateLowPredictionExcludes(t *testing.T) {
	f := NewRuleFilter(nil, WithPredictor(predict.Fixed{Score: 0.1}, 0.3, time.Second))
	input := []model.Notification{note("a", model.PriorityHigh, model.CategorySystem, model.TypeError, 0)}
	res := f.ApplyContentGate(context.Background(), input, model.ContextSnapshot{})
	if len(res.Excluded) != 1 {
		t.Fatalf("expected low-score exclusion")
	}
}

func TestContentGateFloorConfigurable(t *testing.T) {
	input := []model.Notification{note("a", model.PriorityHigh, model.CategorySystem, model.TypeError, 0)}

	lenient := NewRuleFilter(nil, WithPredictor(predict.Fixed{Score: 0.1}, 0.05, time.Second))
	res := lenient.ApplyContentGate(context.Background(), input, model.ContextSnapshot{})
	if len(res.Included) != 1 {
		t.Fatalf("score 0.1 above floor 0.05 must pass")
	}

	strict := NewRuleFilter(nil, WithPredictor(predict.Fixed{Score: 0.1}, 0.9, time.Second))
	res = strict.ApplyContentGate(context.Background(), input, model.ContextSnapshot{})
	if len(res.Excluded) != 1 {
		t.Fatalf("score 0.1 below floor 0.9 must be excluded")
	}
}

func TestContentGatePredictorErrorPassesThrough(t *testing.T) {
	f := NewRuleFilter(nil, WithPredictor(predict.Fixed{Err: errors.New("model offline")}, 0.3, time.Second))
	input := []model.Notification{note("a", model.PriorityHigh, model.CategorySystem, model.TypeError, 0)}
	res := f.ApplyContentGate(context.Background(), input, model.ContextSnapshot{})
	if len(res.Included) != 1 {
		t.Fatalf("predictor error must pass the notification through")
	}
}
