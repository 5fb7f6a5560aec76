package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/courseware/internal/editor"
	"github.com/felixgeelhaar/courseware/internal/quiz"
)

// ErrWipeNotConfirmed is returned when courseware_wipe is called without confirm
var ErrWipeNotConfirmed = errors.New("wipe requires confirm=true")

// Server exposes the quiz cache and code validation over MCP
type Server struct {
	mcpServer *server.Server
	cache     *quiz.Cache
}

// Config contains configuration for the MCP server
type Config struct {
	Cache   *quiz.Cache
	Version string
}

// NewServer creates a new MCP server for courseware
func NewServer(cfg Config) *Server {
	s := &Server{cache: cfg.Cache}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "courseware",
		Version: version,
	}, server.WithInstructions(`
Courseware keeps quiz questions, progress and results available offline and
checks learner code without running it.

Available tools:
- courseware_stats: Attempt statistics, overall or for one topic
- courseware_topics: Latest result per topic
- courseware_inspect: What the quiz cache currently holds
- courseware_offline_topics: Topics whose questions are cached and fresh
- courseware_wipe: Delete all cached quiz data (requires confirm)
- courseware_validate: Check JavaScript, TypeScript, CSS or JSON for syntax and style problems
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("courseware_stats").
		Description("Get quiz attempt statistics. Omit topic_id for all topics.").
		Handler(s.handleStats)

	s.mcpServer.Tool("courseware_topics").
		Description("List the latest result for every attempted topic.").
		Handler(s.handleTopics)

	s.mcpServer.Tool("courseware_inspect").
		Description("Report cached topics, results, progress entries and their sizes.").
		Handler(s.handleInspect)

	s.mcpServer.Tool("courseware_offline_topics").
		Description("List topics that can be quizzed without a connection.").
		Handler(s.handleOfflineTopics)

	s.mcpServer.Tool("courseware_wipe").
		Description("Delete all cached questions, progress and results.").
		Handler(s.handleWipe)

	s.mcpServer.Tool("courseware_validate").
		Description("Check code for syntax errors and style problems without executing it.").
		Handler(s.handleValidate)
}

// Input/Output types for tools

type StatsInput struct {
	TopicID string `json:"topic_id,omitempty" jsonschema:"description=Topic to aggregate; empty for all topics"`
}

type StatsOutput struct {
	HasResults        bool    `json:"has_results"`
	TotalAttempts     int     `json:"total_attempts"`
	PassedAttempts    int     `json:"passed_attempts"`
	PassRate          int     `json:"pass_rate"`
	AvgScore          float64 `json:"avg_score"`
	AvgCompletionTime string  `json:"avg_completion_time"`
	LatestTopic       string  `json:"latest_topic,omitempty"`
}

type EmptyInput struct{}

type TopicsOutput struct {
	Topics []quiz.TopicSummary `json:"topics"`
}

type OfflineTopicsOutput struct {
	Topics []string `json:"topics"`
}

type WipeInput struct {
	Confirm bool `json:"confirm" jsonschema:"description=Must be true to delete data"`
}

type WipeOutput struct {
	Message string `json:"message"`
}

type ValidateInput struct {
	Code     string `json:"code" jsonschema:"description=Source code to check"`
	Language string `json:"language,omitempty" jsonschema:"description=javascript (default), typescript, jsx, tsx, css or json"`
}

func (s *Server) handleStats(ctx context.Context, input StatsInput) (StatsOutput, error) {
	stats, ok := s.cache.Results.GetStatistics(input.TopicID)
	if !ok {
		return StatsOutput{}, nil
	}
	return StatsOutput{
		HasResults:        true,
		TotalAttempts:     stats.TotalAttempts,
		PassedAttempts:    stats.PassedAttempts,
		PassRate:          stats.PassRate,
		AvgScore:          stats.AvgScore,
		AvgCompletionTime: quiz.FormatDuration(stats.AvgCompletionTime),
		LatestTopic:       stats.LatestAttempt.TopicID,
	}, nil
}

func (s *Server) handleTopics(ctx context.Context, _ EmptyInput) (TopicsOutput, error) {
	return TopicsOutput{Topics: s.cache.Results.TopicSummaries()}, nil
}

func (s *Server) handleInspect(ctx context.Context, _ EmptyInput) (quiz.Inspection, error) {
	return s.cache.Admin.Inspect(), nil
}

func (s *Server) handleOfflineTopics(ctx context.Context, _ EmptyInput) (OfflineTopicsOutput, error) {
	topics := s.cache.Admin.ListOfflineTopics()
	if topics == nil {
		topics = []string{}
	}
	return OfflineTopicsOutput{Topics: topics}, nil
}

func (s *Server) handleWipe(ctx context.Context, input WipeInput) (WipeOutput, error) {
	if !input.Confirm {
		return WipeOutput{}, ErrWipeNotConfirmed
	}
	if res := s.cache.Admin.WipeAll(); !res.Stored {
		return WipeOutput{}, fmt.Errorf("wipe quiz cache: %w", res.Err)
	}
	return WipeOutput{Message: "All cached quiz data deleted"}, nil
}

func (s *Server) handleValidate(ctx context.Context, input ValidateInput) (editor.ValidationResult, error) {
	language := input.Language
	if language == "" {
		language = "javascript"
	}
	return editor.Validate(input.Code, language), nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
