package content

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/felixgeelhaar/courseware/internal/quiz"
)

// Registry holds loaded banks and selects questions from them. It
// implements quiz.QuestionSource.
type Registry struct {
	loader  *Loader
	perQuiz int
	mu      sync.RWMutex
	banks   map[string]*Bank
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// Option configures a Registry
type Option func(*Registry)

// WithQuestionsPerQuiz sets how many questions a selection contains
func WithQuestionsPerQuiz(n int) Option {
	return func(r *Registry) { r.perQuiz = n }
}

// WithRand sets the random source used for selection
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) { r.rng = rng }
}

// NewRegistry creates a new question bank registry
func NewRegistry(loader *Loader, opts ...Option) *Registry {
	r := &Registry{
		loader:  loader,
		perQuiz: 10,
		banks:   make(map[string]*Bank),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads every bank from disk, replacing what was loaded before
func (r *Registry) Load() error {
	banks, err := r.loader.LoadAllBanks()
	if err != nil {
		return fmt.Errorf("load banks: %w", err)
	}

	loaded := make(map[string]*Bank, len(banks))
	for _, b := range banks {
		loaded[b.TopicID] = b
	}

	r.mu.Lock()
	r.banks = loaded
	r.mu.Unlock()
	return nil
}

// GetBank returns the bank for topicID
func (r *Registry) GetBank(topicID string) (*Bank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bank, ok := r.banks[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	return bank, nil
}

// ListTopics returns all loaded topic IDs, sorted
func (r *Registry) ListTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.banks))
	for id := range r.banks {
		topics = append(topics, id)
	}
	sort.Strings(topics)
	return topics
}

// SelectQuestions picks up to the configured number of distinct questions
// from topicID's bank in random order
func (r *Registry) SelectQuestions(topicID string) ([]quiz.Question, error) {
	bank, err := r.GetBank(topicID)
	if err != nil {
		return nil, err
	}

	n := r.perQuiz
	if n <= 0 || n > len(bank.Questions) {
		n = len(bank.Questions)
	}

	r.rngMu.Lock()
	order := r.rng.Perm(len(bank.Questions))
	r.rngMu.Unlock()

	selected := make([]quiz.Question, n)
	for i := 0; i < n; i++ {
		selected[i] = bank.Questions[order[i]]
	}
	return selected, nil
}

var _ quiz.QuestionSource = (*Registry)(nil)
