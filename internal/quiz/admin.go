package quiz

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// Inspection describes what the quiz cache currently holds. Sizes are
// approximate kilobytes of the serialized blobs.
type Inspection struct {
	Available       bool    `json:"available"`
	CachedTopics    int     `json:"cachedTopics"`
	QuestionCacheKB float64 `json:"questionCacheKb"`
	Results         int     `json:"results"`
	ResultsKB       float64 `json:"resultsKb"`
	ProgressEntries int     `json:"progressEntries"`
	ProgressKB      float64 `json:"progressKb"`
	TotalKB         float64 `json:"totalKb"`
}

// Admin inspects and wipes all quiz state
type Admin struct {
	store     storage.Store
	s         *settings
	questions *QuestionCache
	results   *ResultLog
}

// WipeAll removes the question cache, the result log and every progress
// snapshot. Wiping an empty cache succeeds.
func (a *Admin) WipeAll() WriteResult {
	a.questions.mu.Lock()
	defer a.questions.mu.Unlock()
	a.results.mu.Lock()
	defer a.results.mu.Unlock()

	var errs []error
	for _, key := range []string{QuestionsKey, ResultsKey} {
		if wr := a.s.remove(a.store, key); wr.Err != nil {
			errs = append(errs, wr.Err)
		}
	}

	keys, err := a.store.Keys()
	if err != nil {
		a.s.logger.Warn("failed to list quiz progress keys", "error", err)
		errs = append(errs, err)
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, ProgressKeyPrefix) {
			continue
		}
		if wr := a.s.remove(a.store, key); wr.Err != nil {
			errs = append(errs, wr.Err)
		}
	}

	if len(errs) > 0 {
		return WriteResult{Err: errors.Join(errs...)}
	}
	a.s.logger.Info("quiz cache wiped")
	return WriteResult{Stored: true}
}

// Inspect reports counts and sizes. Any read or parse failure yields an
// Inspection with Available false.
func (a *Admin) Inspect() Inspection {
	unavailable := Inspection{}

	questionsRaw, ok := a.raw(QuestionsKey)
	if !ok {
		return unavailable
	}
	resultsRaw, ok := a.raw(ResultsKey)
	if !ok {
		return unavailable
	}

	var sets map[string]CachedQuestionSet
	if questionsRaw != "" {
		if err := json.Unmarshal([]byte(questionsRaw), &sets); err != nil {
			return unavailable
		}
	}
	var results []AttemptResult
	if resultsRaw != "" {
		if err := json.Unmarshal([]byte(resultsRaw), &results); err != nil {
			return unavailable
		}
	}

	keys, err := a.store.Keys()
	if err != nil {
		return unavailable
	}
	progressEntries, progressBytes := 0, 0
	for _, key := range keys {
		if !strings.HasPrefix(key, ProgressKeyPrefix) {
			continue
		}
		raw, ok := a.raw(key)
		if !ok {
			return unavailable
		}
		progressEntries++
		progressBytes += len(raw)
	}

	return Inspection{
		Available:       true,
		CachedTopics:    len(sets),
		QuestionCacheKB: kilobytes(len(questionsRaw)),
		Results:         len(results),
		ResultsKB:       kilobytes(len(resultsRaw)),
		ProgressEntries: progressEntries,
		ProgressKB:      kilobytes(progressBytes),
		TotalKB:         kilobytes(len(questionsRaw) + len(resultsRaw) + progressBytes),
	}
}

// ListOfflineTopics returns the topics whose cached questions are within the
// TTL, sorted
func (a *Admin) ListOfflineTopics() []string {
	return a.questions.Topics()
}

// raw returns the stored string for key, "" when absent, and false on a
// storage failure
func (a *Admin) raw(key string) (string, bool) {
	v, err := a.store.GetItem(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", true
	}
	if err != nil {
		a.s.logger.Warn("quiz cache inspection failed", "key", key, "error", err)
		return "", false
	}
	return v, true
}

func kilobytes(n int) float64 {
	return math.Round(float64(n)/1024*100) / 100
}
