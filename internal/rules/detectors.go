package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"notigate/internal/model"
)

// SpamDetector and DuplicateDetector are pluggable strategies consulted
// by the content gate.
type SpamDetector interface {
	IsSpam(n model.Notification) bool
}

type DuplicateDetector interface {
	IsDuplicate(n model.Notification) bool
}

// PhraseSpamDetector flags a notification when at least minHits of its
// phrase list appear in title+message, case-insensitively.
type PhraseSpamDetector struct {
	phrases []string
	minHits int
}

func NewPhraseSpamDetector(phrases []string, minHits int) *PhraseSpamDetector {
	if len(phrases) == 0 {
		phrases = []string{
			"click here",
			"act now",
			"limited time",
			"free offer",
			"urgent response required",
			"winner",
			"congratulations",
		}
	}
	if minHits <= 0 {
		minHits = 2
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &PhraseSpamDetector{phrases: lowered, minHits: minHits}
}

func (d *PhraseSpamDetector) IsSpam(n model.Notification) bool {
	haystack := strings.ToLower(n.Title + " " + n.Message)
	hits := 0
	for _, p := range d.phrases {
		if strings.Contains(haystack, p) {
			hits++
			if hits >= d.minHits {
				return true
			}
		}
	}
	return false
}

// NoopDuplicateDetector never reports a duplicate. It is the default.
type NoopDuplicateDetector struct{}

func (NoopDuplicateDetector) IsDuplicate(model.Notification) bool { return false }

// RecentDuplicateDetector remembers content fingerprints for a TTL and
// reports repeats inside the window.
type RecentDuplicateDetector struct {
	mu    sync.Mutex
	items map[string]time.Time
	ttl   time.Duration
}

func NewRecentDuplicateDetector(ttl time.Duration) *RecentDuplicateDetector {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RecentDuplicateDetector{items: make(map[string]time.Time), ttl: ttl}
}

func (d *RecentDuplicateDetector) IsDuplicate(n model.Notification) bool {
	key := fingerprint(n)
	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= d.ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now)
	}
	return false
}

func (d *RecentDuplicateDetector) compact(now time.Time) {
	for k, ts := range d.items {
		if now.Sub(ts) > d.ttl {
			delete(d.items, k)
		}
	}
}

func fingerprint(n model.Notification) string {
	parts := []string{
		string(n.Category),
		string(n.Type),
		strings.ToLower(strings.TrimSpace(n.Title)),
		strings.ToLower(strings.TrimSpace(n.Message)),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
