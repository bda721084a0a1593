package scoring

import (
	"reflect"
	"testing"
	"time"

	"notigate/internal/model"
)

func historyNote(c model.Category, ty model.Type, at time.Time, engaged bool, responseMs int) model.Notification {
	n := model.Notification{
		ID:        "h-" + string(c) + at.Format("150405"),
		Type:      ty,
		Category:  c,
		Priority:  model.PriorityMedium,
		CreatedAt: at,
	}
	n.Metadata.UserEngaged = engaged
	n.Metadata.ResponseTime = time.Duration(responseMs) * time.Millisecond
	return n
}

func TestAnalyzeBehaviorDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	history := []model.Notification{
		historyNote(model.CategorySystem, model.TypeError, base, true, 1200),
		historyNote(model.CategorySystem, model.TypeError, base.Add(time.Hour), false, 0),
		historyNote(model.CategoryWorkflow, model.TypeInfo, base.Add(2*time.Hour), true, 800),
		historyNote(model.CategorySystem, model.TypeWarning, base.Add(3*time.Hour), false, 0),
	}
	first := AnalyzeBehavior("u1", history)
	second := AnalyzeBehavior("u1", history)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated analysis differs:\n%+v\n%+v", first, second)
	}
}

func TestAnalyzeBehaviorEmptyHistory(t *testing.T) {
	pattern := AnalyzeBehavior("u1", nil)
	if pattern.UserID != "u1" {
		t.Fatalf("expected user id carried through")
	}
	if pattern.FatigueCount != 0 || len(pattern.PreferredCategories) != 0 {
		t.Fatalf("empty history should produce an empty pattern: %+v", pattern)
	}
	if !pattern.LastEngagedAt.IsZero() {
		t.Fatalf("expected zero last-engaged time")
	}
}

func TestAnalyzeBehaviorPreferredCategories(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	var history []model.Notification
	for i := 0; i < 6; i++ {
		history = append(history, historyNote(model.CategorySystem, model.TypeError, base.Add(time.Duration(i)*time.Hour), false, 0))
	}
	history = append(history, historyNote(model.CategoryBusiness, model.TypeInfo, base, false, 0))

	pattern := AnalyzeBehavior("u1", history)
	if !pattern.PrefersCategory(model.CategorySystem) {
		t.Fatalf("system should be preferred: %+v", pattern.PreferredCategories)
	}
	if pattern.PrefersCategory(model.CategoryBusiness) {
		t.Fatalf("business occurs below average, should not be preferred")
	}
}

func TestAnalyzeBehaviorEngagementRate(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	history := []model.Notification{
		historyNote(model.CategorySystem, model.TypeError, base, true, 1000),
		historyNote(model.CategorySystem, model.TypeError, base.Add(time.Hour), true, 3000),
		historyNote(model.CategorySystem, model.TypeError, base.Add(2*time.Hour), false, 0),
		historyNote(model.CategorySystem, model.TypeError, base.Add(3*time.Hour), false, 0),
	}
	pattern := AnalyzeBehavior("u1", history)
	eng := pattern.Engagement[model.CategorySystem]
	if eng.Rate != 0.5 {
		t.Fatalf("expected engagement rate 0.5, got %v", eng.Rate)
	}
	if eng.MeanResponseTime != 2*time.Second {
		t.Fatalf("expected mean response 2s, got %v", eng.MeanResponseTime)
	}
}

func TestAnalyzeBehaviorFatigueAnchoredToNewest(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	history := []model.Notification{
		historyNote(model.CategorySystem, model.TypeError, base.Add(-48*time.Hour), false, 0),
		historyNote(model.CategorySystem, model.TypeError, base.Add(-2*time.Hour), false, 0),
		historyNote(model.CategorySystem, model.TypeError, base, true, 0),
	}
	pattern := AnalyzeBehavior("u1", history)
	if pattern.FatigueCount != 2 {
		t.Fatalf("expected 2 notifications inside trailing 24h of newest, got %d", pattern.FatigueCount)
	}
	if !pattern.LastEngagedAt.Equal(base) {
		t.Fatalf("expected last engaged at %v, got %v", base, pattern.LastEngagedAt)
	}
}

func TestAnalyzeBehaviorMeanGap(t *testing.T) {
	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	history := []model.Notification{
		historyNote(model.CategorySystem, model.TypeError, base.Add(2*time.Hour), false, 0),
		historyNote(model.CategorySystem, model.TypeError, base, false, 0),
		historyNote(model.CategorySystem, model.TypeError, base.Add(time.Hour), false, 0),
	}
	pattern := AnalyzeBehavior("u1", history)
	if pattern.MeanGap != time.Hour {
		t.Fatalf("expected mean gap 1h, got %v", pattern.MeanGap)
	}
}
