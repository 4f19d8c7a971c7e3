package post

import (
	"math"
	"sort"
	"time"
)

type SubredditCount struct {
	Subreddit string `json:"subreddit"`
	Count     int    `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AverageCompliance is the rounded mean score, zero for no posts.
func AverageCompliance(posts []Post) int {
	if len(posts) == 0 {
		return 0
	}
	sum := 0
	for _, p := range posts {
		sum += p.ComplianceScore
	}
	return int(math.Round(float64(sum) / float64(len(posts))))
}

// TopSubreddits ranks by post count, ties broken by name.
func TopSubreddits(posts []Post, n int) []SubredditCount {
	counts := make(map[string]int)
	for _, p := range posts {
		counts[p.Subreddit]++
	}

	out := make([]SubredditCount, 0, len(counts))
	for s, c := range counts {
		out = append(out, SubredditCount{Subreddit: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Subreddit < out[j].Subreddit
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DailyCounts buckets posts by UTC day over the days ending at now, oldest
// first. Days without posts are reported with a zero count.
func DailyCounts(posts []Post, now time.Time, days int) []DayCount {
	if days <= 0 {
		return []DayCount{}
	}
	counts := make(map[string]int, days)
	for _, p := range posts {
		counts[p.CreatedAt.UTC().Format(time.DateOnly)]++
	}

	today := now.UTC()
	out := make([]DayCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i).Format(time.DateOnly)
		out = append(out, DayCount{Date: d, Count: counts[d]})
	}
	return out
}
