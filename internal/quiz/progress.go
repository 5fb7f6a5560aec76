package quiz

import "github.com/felixgeelhaar/courseware/internal/storage"

// ProgressSnapshot is an in-flight attempt. UserAnswers holds the selected
// option per answered question, nil where no option was chosen.
type ProgressSnapshot struct {
	TopicID              string `json:"topicId"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	UserAnswers          []*int `json:"userAnswers"`
	Score                int    `json:"score"`
	Timestamp            int64  `json:"timestamp"`
	IsActive             bool   `json:"isActive"`
}

// Answer returns a pointer to option for use in UserAnswers
func Answer(option int) *int {
	return &option
}

// ProgressStore keeps one resumable snapshot per topic
type ProgressStore struct {
	store storage.Store
	s     *settings
}

// ProgressKey returns the storage key of topicID's snapshot
func ProgressKey(topicID string) string {
	return ProgressKeyPrefix + topicID
}

// Save overwrites the snapshot for snap.TopicID, stamping it with the
// current time.
func (p *ProgressStore) Save(snap ProgressSnapshot) WriteResult {
	snap.Timestamp = p.s.nowMillis()
	if snap.UserAnswers == nil {
		snap.UserAnswers = []*int{}
	}
	return p.s.write(p.store, ProgressKey(snap.TopicID), snap, "topic_id", snap.TopicID)
}

// Load returns the snapshot for topicID if it was saved within the progress
// TTL. An expired snapshot is deleted.
func (p *ProgressStore) Load(topicID string) (ProgressSnapshot, bool) {
	var snap ProgressSnapshot
	if !p.s.read(p.store, ProgressKey(topicID), &snap) {
		return ProgressSnapshot{}, false
	}
	if p.s.expired(snap.Timestamp, p.s.progressTTL) {
		p.s.remove(p.store, ProgressKey(topicID), "topic_id", topicID)
		return ProgressSnapshot{}, false
	}
	return snap, true
}

// Clear deletes the snapshot for topicID. Clearing an absent snapshot is a
// successful no-op.
func (p *ProgressStore) Clear(topicID string) WriteResult {
	return p.s.remove(p.store, ProgressKey(topicID), "topic_id", topicID)
}
