package results

import (
	"sync"
	"time"

	"notigate/internal/model"
)

// Decision is one recorded batch outcome.
type Decision struct {
	Timestamp time.Time           `json:"timestamp"`
	UserID    string              `json:"user_id,omitempty"`
	Delivered []string            `json:"delivered"`
	Stats     model.PipelineStats `json:"stats"`
}

// History keeps the most recent batch decisions in a bounded ring.
type History struct {
	mu    sync.RWMutex
	buf   []Decision
	limit int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1000
	}
	return &History{limit: limit}
}

func (h *History) Add(d Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) < h.limit {
		h.buf = append(h.buf, d)
		return
	}
	copy(h.buf, h.buf[1:])
	h.buf[len(h.buf)-1] = d
}

func (h *History) List(limit int) []Decision {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.buf) {
		limit = len(h.buf)
	}
	out := make([]Decision, 0, limit)
	start := len(h.buf) - limit
	for i := start; i < len(h.buf); i++ {
		out = append(out, h.buf[i])
	}
	return out
}

func (h *History) Since(ts time.Time) []Decision {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Decision, 0)
	for _, d := range h.buf {
		if !d.Timestamp.Before(ts) {
			out = append(out, d)
		}
	}
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
}

// UserStats tracks the latest pipeline statistics per user, evicting
// the stalest user beyond the limit.
type UserStats struct {
	mu        sync.RWMutex
	byUser    map[string]model.PipelineStats
	updatedAt map[string]time.Time
	limit     int
}

func NewUserStats(limit int) *UserStats {
	if limit <= 0 {
		limit = 5000
	}
	return &UserStats{
		byUser:    make(map[string]model.PipelineStats),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *UserStats) Update(userID string, stats model.PipelineStats) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = stats
	s.updatedAt[userID] = time.Now().UTC()
	if len(s.byUser) > s.limit {
		s.evictOldest()
	}
}

func (s *UserStats) Get(userID string) (model.PipelineStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.byUser[userID]
	if !ok {
		return model.PipelineStats{}, time.Time{}, false
	}
	return stats, s.updatedAt[userID], true
}

func (s *UserStats) GetAll() map[string]model.PipelineStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.PipelineStats, len(s.byUser))
	for userID, stats := range s.byUser {
		out[userID] = stats
	}
	return out
}

func (s *UserStats) evictOldest() {
	var oldestUser string
	var oldest time.Time
	for userID, ts := range s.updatedAt {
		if oldestUser == "" || ts.Before(oldest) {
			oldestUser = userID
			oldest = ts
		}
	}
	if oldestUser != "" {
		delete(s.byUser, oldestUser)
		delete(s.updatedAt, oldestUser)
	}
}

func (s *UserStats) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[string]model.PipelineStats)
	s.updatedAt = make(map[string]time.Time)
}
