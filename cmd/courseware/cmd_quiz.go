package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/daemon"
	"github.com/felixgeelhaar/courseware/internal/quiz"
	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/backend"
)

// openCache opens the configured store directly, without the daemon
func openCache() (*quiz.Cache, func(), error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := backend.Open(ctx, dir, cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	cache := quiz.New(store, daemon.QuizOptions(cfg.Quiz, clockwork.NewRealClock(), logger)...)
	closeFn := func() {
		if err := storage.Close(store); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}
	return cache, closeFn, nil
}

// cmdStats shows attempt statistics, overall or for one topic
func cmdStats(args []string) error {
	cache, closeFn, err := openCache()
	if err != nil {
		return err
	}
	defer closeFn()

	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}

	stats, ok := cache.Results.GetStatistics(topic)
	if !ok {
		if topic != "" {
			fmt.Printf("No results for %s yet.\n", topic)
		} else {
			fmt.Println("No quiz results yet. Complete a quiz first!")
		}
		return nil
	}

	title := "Quiz Statistics"
	if topic != "" {
		title += ": " + topic
	}
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", len(title)))
	fmt.Printf("Attempts:         %d\n", stats.TotalAttempts)
	fmt.Printf("Passed:           %d (%d%%)\n", stats.PassedAttempts, stats.PassRate)
	fmt.Printf("Average Score:    %.1f\n", stats.AvgScore)
	fmt.Printf("Average Time:     %s\n", quiz.FormatDuration(stats.AvgCompletionTime))

	latest := stats.LatestAttempt
	fmt.Printf("Latest Attempt:   %s %d/%d on %s\n",
		latest.TopicID, latest.Score, latest.TotalQuestions,
		latest.CompletedAt().Local().Format("2006-01-02 15:04"))
	return nil
}

// cmdTopics lists the latest result per topic
func cmdTopics() error {
	cache, closeFn, err := openCache()
	if err != nil {
		return err
	}
	defer closeFn()

	summaries := cache.Results.TopicSummaries()
	fmt.Println("Results by Topic")
	fmt.Println("================")
	if len(summaries) == 0 {
		fmt.Println("No quiz results yet.")
		return nil
	}

	for _, s := range summaries {
		mark := "✗"
		if s.Passed {
			mark = "✓"
		}
		fmt.Printf("%-24s %s %3d%% %s  %s\n",
			s.TopicID, renderProgressBar(s.Percent, 20), s.Percent, mark,
			quiz.FormatDuration(s.CompletionTime))
	}
	return nil
}

// cmdInspect shows counts and sizes of cached quiz data
func cmdInspect() error {
	cache, closeFn, err := openCache()
	if err != nil {
		return err
	}
	defer closeFn()

	info := cache.Admin.Inspect()
	if !info.Available {
		return fmt.Errorf("quiz cache unreadable")
	}

	fmt.Println("Quiz Cache")
	fmt.Println("==========")
	fmt.Printf("Cached topics:    %d (%.1f KB)\n", info.CachedTopics, info.QuestionCacheKB)
	fmt.Printf("Results:          %d (%.1f KB)\n", info.Results, info.ResultsKB)
	fmt.Printf("Progress entries: %d (%.1f KB)\n", info.ProgressEntries, info.ProgressKB)
	fmt.Printf("Total:            %.1f KB\n", info.TotalKB)

	if topics := cache.Admin.ListOfflineTopics(); len(topics) > 0 {
		fmt.Printf("\nAvailable offline: %s\n", strings.Join(topics, ", "))
	}
	return nil
}

// cmdWipe deletes every cached question set, progress snapshot and result
func cmdWipe(args []string) error {
	confirmed := len(args) > 0 && (args[0] == "--yes" || args[0] == "-y")
	if !confirmed {
		fmt.Print("Delete all cached questions, progress and results? [y/N] ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cache, closeFn, err := openCache()
	if err != nil {
		return err
	}
	defer closeFn()

	if res := cache.Admin.WipeAll(); !res.Stored {
		return fmt.Errorf("wipe quiz cache: %w", res.Err)
	}
	fmt.Println("✓ Quiz cache cleared")
	return nil
}
