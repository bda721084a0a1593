package results

import (
	"fmt"
	"testing"
	"time"

	"notigate/internal/model"
)

func decision(i int, ts time.Time) Decision {
	return Decision{
		Timestamp: ts,
		UserID:    fmt.Sprintf("u%d", i),
		Delivered: []string{fmt.Sprintf("n%d", i)},
		Stats:     model.PipelineStats{Total: i},
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(decision(i, base.Add(time.Duration(i)*time.Second)))
	}
	got := h.List(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained decisions, got %d", len(got))
	}
	// oldest two were displaced
	if got[0].UserID != "u2" || got[2].UserID != "u4" {
		t.Fatalf("ring kept the wrong decisions: %v %v", got[0].UserID, got[2].UserID)
	}
}

func TestHistoryListLimit(t *testing.T) {
	h := NewHistory(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(decision(i, base.Add(time.Duration(i)*time.Second)))
	}
	got := h.List(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got[0].UserID != "u3" || got[1].UserID != "u4" {
		t.Fatalf("limit must return the newest decisions: %v %v", got[0].UserID, got[1].UserID)
	}
}

func TestHistorySince(t *testing.T) {
	h := NewHistory(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(decision(i, base.Add(time.Duration(i)*time.Second)))
	}
	got := h.Since(base.Add(3 * time.Second))
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions at or after cutoff, got %d", len(got))
	}
	h.Clear()
	if len(h.List(0)) != 0 {
		t.Fatalf("clear must empty the history")
	}
}

func TestUserStatsUpdateAndGet(t *testing.T) {
	s := NewUserStats(10)
	s.Update("u1", model.PipelineStats{Total: 5, Filtered: 2})
	s.Update("", model.PipelineStats{Total: 99})

	stats, updatedAt, ok := s.Get("u1")
	if !ok || stats.Total != 5 || stats.Filtered != 2 {
		t.Fatalf("unexpected stats: %+v ok=%v", stats, ok)
	}
	if updatedAt.IsZero() {
		t.Fatalf("expected an update timestamp")
	}
	if _, _, ok := s.Get(""); ok {
		t.Fatalf("empty user id must be ignored")
	}
	if len(s.GetAll()) != 1 {
		t.Fatalf("expected a single tracked user")
	}
}

func TestUserStatsEviction(t *testing.T) {
	s := NewUserStats(3)
	for i := 0; i < 5; i++ {
		s.Update(fmt.Sprintf("u%d", i), model.PipelineStats{Total: i})
		time.Sleep(time.Millisecond)
	}
	all := s.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 tracked users after eviction, got %d", len(all))
	}
	if _, _, ok := s.Get("u4"); !ok {
		t.Fatalf("newest user must survive eviction")
	}
	if _, _, ok := s.Get("u0"); ok {
		t.Fatalf("stalest user must be evicted first")
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("clear must drop all users")
	}
}
