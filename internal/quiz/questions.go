package quiz

import (
	"sort"
	"sync"

	"github.com/felixgeelhaar/courseware/internal/storage"
)

// CachedQuestionSet is the question selection stored for one topic
type CachedQuestionSet struct {
	Questions []Question `json:"questions"`
	Timestamp int64      `json:"timestamp"`
	TopicID   string     `json:"topicId"`
	Version   string     `json:"version"`
}

// QuestionCache stores one question selection per topic in a single blob
// keyed by topic ID.
type QuestionCache struct {
	mu    sync.Mutex
	store storage.Store
	s     *settings
}

// Put caches questions for topicID, replacing any previous selection. When
// the cache already holds the maximum number of topics the oldest entries
// are evicted.
func (c *QuestionCache) Put(topicID string, questions []Question) WriteResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	sets := c.load()
	if questions == nil {
		questions = []Question{}
	}
	sets[topicID] = CachedQuestionSet{
		Questions: questions,
		Timestamp: c.s.nowMillis(),
		TopicID:   topicID,
		Version:   c.s.version,
	}

	for len(sets) > c.s.maxTopics {
		oldest := ""
		for id, set := range sets {
			if id == topicID {
				continue
			}
			if oldest == "" || set.Timestamp < sets[oldest].Timestamp ||
				(set.Timestamp == sets[oldest].Timestamp && id < oldest) {
				oldest = id
			}
		}
		if oldest == "" {
			break
		}
		delete(sets, oldest)
		c.s.logger.Debug("evicted cached questions", "topic_id", oldest)
	}

	return c.s.write(c.store, QuestionsKey, sets, "topic_id", topicID)
}

// Get returns the cached questions for topicID. Entries past the TTL are
// absent; entries written under another schema version are absent and
// removed.
func (c *QuestionCache) Get(topicID string) ([]Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sets := c.load()
	set, ok := sets[topicID]
	if !ok {
		return nil, false
	}
	if set.Version != c.s.version {
		delete(sets, topicID)
		c.s.write(c.store, QuestionsKey, sets, "topic_id", topicID)
		return nil, false
	}
	if c.s.expired(set.Timestamp, c.s.questionTTL) {
		return nil, false
	}
	return set.Questions, true
}

// Topics returns the topics whose cached questions are still usable, sorted
func (c *QuestionCache) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var topics []string
	for id, set := range c.load() {
		if set.Version == c.s.version && !c.s.expired(set.Timestamp, c.s.questionTTL) {
			topics = append(topics, id)
		}
	}
	sort.Strings(topics)
	return topics
}

// load returns the stored map, or an empty one when absent or unreadable
func (c *QuestionCache) load() map[string]CachedQuestionSet {
	sets := make(map[string]CachedQuestionSet)
	if !c.s.read(c.store, QuestionsKey, &sets) || sets == nil {
		return make(map[string]CachedQuestionSet)
	}
	return sets
}
