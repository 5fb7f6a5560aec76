// Package content loads quiz question banks from YAML files and selects
// randomized question sets from them.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/courseware/internal/quiz"
)

// ErrTopicNotFound is returned for a topic without a question bank
var ErrTopicNotFound = errors.New("topic not found")

// BankFile represents the YAML structure of a question bank
type BankFile struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	PassThreshold int    `yaml:"pass_threshold"` // percent
	Questions     []struct {
		ID            string   `yaml:"id"`
		Question      string   `yaml:"question"`
		Options       []string `yaml:"options"`
		CorrectAnswer int      `yaml:"correct_answer"`
		Explanation   string   `yaml:"explanation"`
		Difficulty    string   `yaml:"difficulty"`
	} `yaml:"questions"`
}

// Bank is the question pool for one topic
type Bank struct {
	TopicID       string
	Title         string
	Description   string
	PassThreshold int
	Questions     []quiz.Question
}

// Loader reads question banks named <topic>.yaml from a directory
type Loader struct {
	basePath string
}

// NewLoader creates a new question bank loader
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the directory banks are read from
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadBank loads and validates the bank for topicID
func (l *Loader) LoadBank(topicID string) (*Bank, error) {
	if topicID == "" || strings.ContainsAny(topicID, `/\`) || strings.HasPrefix(topicID, ".") {
		return nil, fmt.Errorf("invalid topic id: %q", topicID)
	}

	data, err := os.ReadFile(filepath.Join(l.basePath, topicID+".yaml"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}

	var file BankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bank file: %w", err)
	}

	if file.ID == "" {
		file.ID = topicID
	}
	if file.ID != topicID {
		return nil, fmt.Errorf("bank %s declares id %q", topicID, file.ID)
	}
	if file.PassThreshold <= 0 {
		file.PassThreshold = 70
	}

	bank := &Bank{
		TopicID:       file.ID,
		Title:         file.Title,
		Description:   file.Description,
		PassThreshold: file.PassThreshold,
		Questions:     make([]quiz.Question, 0, len(file.Questions)),
	}

	seen := make(map[string]bool, len(file.Questions))
	for i, q := range file.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("bank %s: question %d has no id", topicID, i)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("bank %s: duplicate question id %s", topicID, q.ID)
		}
		seen[q.ID] = true
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("bank %s: question %s correct_answer %d out of range", topicID, q.ID, q.CorrectAnswer)
		}

		bank.Questions = append(bank.Questions, quiz.Question{
			ID:            q.ID,
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Difficulty:    q.Difficulty,
		})
	}

	return bank, nil
}

// LoadAllBanks loads every *.yaml bank in the base directory, sorted by topic
func (l *Loader) LoadAllBanks() ([]*Bank, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read questions directory: %w", err)
	}

	var banks []*Bank
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".yaml" || strings.HasPrefix(name, ".") {
			continue
		}

		bank, err := l.LoadBank(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("load bank %s: %w", name, err)
		}
		banks = append(banks, bank)
	}

	sort.Slice(banks, func(i, j int) bool { return banks[i].TopicID < banks[j].TopicID })
	return banks, nil
}
