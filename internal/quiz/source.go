package quiz

import "fmt"

// QuestionSource selects a fresh set of questions for a topic
type QuestionSource interface {
	SelectQuestions(topicID string) ([]Question, error)
}

// LoadQuestions returns the cached questions for topicID, or selects new
// ones from source and caches them. fromCache reports which path was taken.
func (c *Cache) LoadQuestions(topicID string, source QuestionSource) (questions []Question, fromCache bool, err error) {
	if cached, ok := c.Questions.Get(topicID); ok {
		return cached, true, nil
	}

	questions, err = source.SelectQuestions(topicID)
	if err != nil {
		return nil, false, fmt.Errorf("select questions for %s: %w", topicID, err)
	}
	c.Questions.Put(topicID, questions)
	return questions, false, nil
}
