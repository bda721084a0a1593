package scoring

import (
	"sort"
	"time"

	"notigate/internal/model"
)

// AnalyzeBehavior derives a per-user behavior profile from notification
// history. It is a pure function of its input: the trailing-24h fatigue
// window is anchored to the newest history timestamp, not the wall
// clock, so identical history always yields an identical pattern.
func AnalyzeBehavior(userID string, history []model.Notification) model.UserBehaviorPattern {
	pattern := model.UserBehaviorPattern{UserID: userID}
	if len(history) == 0 {
		return pattern
	}

	hourCounts := make(map[int]int)
	categoryCounts := make(map[model.Category]int)
	typeCounts := make(map[model.Type]int)
	engagedCounts := make(map[model.Category]int)
	responseTotals := make(map[model.Category]time.Duration)
	responseCounts := make(map[model.Category]int)

	var newest time.Time
	var lastEngaged time.Time
	for _, n := range history {
		hourCounts[n.CreatedAt.Hour()]++
		categoryCounts[n.Category]++
		typeCounts[n.Type]++
		if n.CreatedAt.After(newest) {
			newest = n.CreatedAt
		}
		if n.Metadata.UserEngaged {
			engagedCounts[n.Category]++
			if n.CreatedAt.After(lastEngaged) {
				lastEngaged = n.CreatedAt
			}
		}
		if n.Metadata.ResponseTime > 0 {
			responseTotals[n.Category] += n.Metadata.ResponseTime
			responseCounts[n.Category]++
		}
	}

	pattern.PreferredHours = aboveAverageHours(hourCounts)
	pattern.PreferredCategories = aboveAverageCategories(categoryCounts)
	pattern.PreferredTypes = aboveAverageTypes(typeCounts)

	pattern.Engagement = make(map[model.Category]model.CategoryEngagement, len(categoryCounts))
	for category, total := range categoryCounts {
		eng := model.CategoryEngagement{
			Rate: float64(engagedCounts[category]) / float64(total),
		}
		if responseCounts[category] > 0 {
			eng.MeanResponseTime = responseTotals[category] / time.Duration(responseCounts[category])
		}
		pattern.Engagement[category] = eng
	}

	cutoff := newest.Add(-24 * time.Hour)
	for _, n := range history {
		if n.CreatedAt.After(cutoff) {
			pattern.FatigueCount++
		}
	}
	pattern.MeanGap = meanGap(history)
	pattern.LastEngagedAt = lastEngaged
	pattern.AnalyzedAt = newest
	return pattern
}

// aboveAverage* keep buckets whose count strictly exceeds the mean
// across the buckets that occurred. Output order is deterministic.
func aboveAverageHours(counts map[int]int) []int {
	avg := meanCount(len(counts), totalCount(counts))
	var out []int
	for hour, count := range counts {
		if float64(count) > avg {
			out = append(out, hour)
		}
	}
	sort.Ints(out)
	return out
}

func aboveAverageCategories(counts map[model.Category]int) []model.Category {
	total := 0
	for _, c := range counts {
		total += c
	}
	avg := meanCount(len(counts), total)
	var out []model.Category
	for category, count := range counts {
		if float64(count) > avg {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func aboveAverageTypes(counts map[model.Type]int) []model.Type {
	total := 0
	for _, c := range counts {
		total += c
	}
	avg := meanCount(len(counts), total)
	var out []model.Type
	for typ, count := range counts {
		if float64(count) > avg {
			out = append(out, typ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func totalCount(counts map[int]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func meanCount(buckets, total int) float64 {
	if buckets == 0 {
		return 0
	}
	return float64(total) / float64(buckets)
}

func meanGap(history []model.Notification) time.Duration {
	if len(history) < 2 {
		return 0
	}
	times := make([]time.Time, len(history))
	for i, n := range history {
		times[i] = n.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	var total time.Duration
	for i := 1; i < len(times); i++ {
		total += times[i].Sub(times[i-1])
	}
	return total / time.Duration(len(times)-1)
}
