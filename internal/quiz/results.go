package quiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// AttemptResult is one completed attempt. Timestamp is the completion time
// and CompletionTime the attempt duration, both in milliseconds.
type AttemptResult struct {
	TopicID        string `json:"topicId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	Passed         bool   `json:"passed"`
	Timestamp      int64  `json:"timestamp"`
	CompletionTime int64  `json:"completionTime"`
}

// CompletedAt returns the completion time
func (r AttemptResult) CompletedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Percent returns the score as a whole percentage of TotalQuestions
func (r AttemptResult) Percent() int {
	if r.TotalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(r.Score) * 100 / float64(r.TotalQuestions)))
}

// Statistics aggregates attempt results
type Statistics struct {
	TotalAttempts     int           `json:"totalAttempts"`
	PassedAttempts    int           `json:"passedAttempts"`
	PassRate          int           `json:"passRate"`
	AvgScore          float64       `json:"avgScore"`
	AvgCompletionTime int64         `json:"avgCompletionTime"`
	LatestAttempt     AttemptResult `json:"latestAttempt"`
}

// TopicSummary is the latest attempt for one topic
type TopicSummary struct {
	TopicID        string `json:"topicId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	Percent        int    `json:"percent"`
	Passed         bool   `json:"passed"`
	CompletionTime int64  `json:"completionTime"`
	CompletedAt    int64  `json:"completedAt"`
}

// ResultPublisher is notified after a result is stored
type ResultPublisher interface {
	PublishResult(ctx context.Context, result AttemptResult) error
}

const publishTimeout = 5 * time.Second

// ResultLog holds the latest attempt per topic, bounded in total size
type ResultLog struct {
	mu    sync.Mutex
	store storage.Store
	s     *settings
}

// ErrResultEvicted is reported when a result is older than everything in a
// full log and would be dropped by the bound as soon as it was written
var ErrResultEvicted = errors.New("result older than every entry in a full log")

// Record stores result, replacing any earlier result for the same topic. A
// zero Timestamp is set to now. When the log grows past its bound the oldest
// results are dropped; if that would drop result itself the log is left
// untouched and ErrResultEvicted is reported.
func (l *ResultLog) Record(result AttemptResult) WriteResult {
	if result.Timestamp == 0 {
		result.Timestamp = l.s.nowMillis()
	}

	l.mu.Lock()
	results := l.load()
	replaced := false
	for i := range results {
		if results[i].TopicID == result.TopicID {
			results[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		results = append(results, result)
	}
	if len(results) > l.s.maxResults {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Timestamp > results[j].Timestamp
		})
		if !containsTopic(results[:l.s.maxResults], result.TopicID) {
			l.mu.Unlock()
			l.s.logger.Warn("quiz result not stored",
				"topic_id", result.TopicID,
				"timestamp", result.Timestamp,
				"error", ErrResultEvicted)
			return WriteResult{Err: ErrResultEvicted}
		}
		results = results[:l.s.maxResults]
	}
	wr := l.s.write(l.store, ResultsKey, results, "topic_id", result.TopicID)
	l.mu.Unlock()

	if wr.Stored && l.s.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := l.s.publisher.PublishResult(ctx, result); err != nil {
			l.s.logger.Warn("failed to publish quiz result",
				"topic_id", result.TopicID,
				"error", err)
		}
	}
	return wr
}

func containsTopic(results []AttemptResult, topicID string) bool {
	for _, r := range results {
		if r.TopicID == topicID {
			return true
		}
	}
	return false
}

// GetForTopic returns the latest result recorded for topicID
func (l *ResultLog) GetForTopic(topicID string) (AttemptResult, bool) {
	for _, r := range l.GetAll() {
		if r.TopicID == topicID {
			return r, true
		}
	}
	return AttemptResult{}, false
}

// GetAll returns every stored result in storage order
func (l *ResultLog) GetAll() []AttemptResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// GetStatistics aggregates the results for topicID, or all results when
// topicID is empty. It reports false when there is nothing to aggregate.
func (l *ResultLog) GetStatistics(topicID string) (Statistics, bool) {
	var filtered []AttemptResult
	for _, r := range l.GetAll() {
		if topicID == "" || r.TopicID == topicID {
			filtered = append(filtered, r)
		}
	}
	return computeStatistics(filtered)
}

// TopicSummaries returns one row per topic, sorted by topic ID
func (l *ResultLog) TopicSummaries() []TopicSummary {
	results := l.GetAll()
	summaries := make([]TopicSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, TopicSummary{
			TopicID:        r.TopicID,
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			Percent:        r.Percent(),
			Passed:         r.Passed,
			CompletionTime: r.CompletionTime,
			CompletedAt:    r.Timestamp,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].TopicID < summaries[j].TopicID
	})
	return summaries
}

func (l *ResultLog) load() []AttemptResult {
	var results []AttemptResult
	if !l.s.read(l.store, ResultsKey, &results) {
		return nil
	}
	return results
}

func computeStatistics(results []AttemptResult) (Statistics, bool) {
	if len(results) == 0 {
		return Statistics{}, false
	}

	var (
		passed    int
		scoreSum  int
		timeSum   int64
		latestIdx int
	)
	for i, r := range results {
		if r.Passed {
			passed++
		}
		scoreSum += r.Score
		timeSum += r.CompletionTime
		if r.Timestamp > results[latestIdx].Timestamp {
			latestIdx = i
		}
	}

	n := float64(len(results))
	return Statistics{
		TotalAttempts:     len(results),
		PassedAttempts:    passed,
		PassRate:          int(math.Round(float64(passed) * 100 / n)),
		AvgScore:          math.Round(float64(scoreSum)/n*10) / 10,
		AvgCompletionTime: int64(math.Round(float64(timeSum) / n)),
		LatestAttempt:     results[latestIdx],
	}, true
}

// FormatDuration renders a millisecond duration as "1m 05s" or "42s"
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := int64(math.Round(float64(ms) / 1000))
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
}
