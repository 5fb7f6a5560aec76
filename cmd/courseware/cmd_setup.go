package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/courseware/internal/config"
	"github.com/felixgeelhaar/courseware/internal/content"
	"github.com/felixgeelhaar/courseware/internal/events"
)

// cmdInit creates ~/.courseware with a default config and any question banks
// found in ./questions
func cmdInit() error {
	fmt.Println("Courseware - First-Time Setup")
	fmt.Println("=============================")
	fmt.Println()

	fmt.Print("Creating ~/.courseware directory structure... ")
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Print("Setting up question banks... ")
	dest := filepath.Join(dir, "questions")
	if _, err := os.Stat("./questions"); err == nil {
		if err := copyDir("./questions", dest); err != nil {
			fmt.Printf("⚠ copy failed: %v\n", err)
		} else {
			fmt.Println("✓")
		}
	} else {
		fmt.Printf("✓ (add <topic>.yaml files to %s)\n", dest)
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. courseware start    # Start the daemon")
	fmt.Println("  2. courseware doctor   # Verify storage and question banks")
	fmt.Println("  3. courseware mcp      # Expose quiz tools to an MCP client")
	return nil
}

// copyDir copies a directory recursively
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			return os.MkdirAll(dstPath, info.Mode())
		}
		return copyFile(path, dstPath)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// cmdDoctor checks the directory, config, storage, question banks, event
// broker and daemon
func cmdDoctor() error {
	fmt.Println("Checking courseware setup...")
	allGood := true
	fail := func(format string, args ...any) {
		fmt.Printf("✗ "+format+"\n", args...)
		allGood = false
	}

	fmt.Print("Directory: ")
	dir, err := config.Dir()
	if err != nil {
		fail("%v", err)
	} else if _, err := os.Stat(dir); os.IsNotExist(err) {
		fail("not created (run 'courseware init')")
	} else {
		fmt.Printf("✓ %s\n", dir)
	}

	fmt.Print("Config:    ")
	cfg, err := config.LoadLocalConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fail("%v", err)
		fmt.Println()
		fmt.Println("Some checks failed. Please fix the issues above.")
		return nil
	}
	fmt.Println("✓ loaded")

	fmt.Print("Storage:   ")
	if cache, closeFn, err := openCache(); err != nil {
		fail("%v", err)
	} else {
		if cache.Admin.Inspect().Available {
			fmt.Printf("✓ %s\n", cfg.Storage.Backend)
		} else {
			fail("%s not readable", cfg.Storage.Backend)
		}
		closeFn()
	}

	fmt.Print("Questions: ")
	loader := content.NewLoader(config.ResolvePath(dir, cfg.Content.Dir))
	if banks, err := loader.LoadAllBanks(); err != nil {
		fail("%v", err)
	} else if len(banks) == 0 {
		fmt.Printf("⚠ no banks in %s\n", loader.BasePath())
	} else {
		fmt.Printf("✓ %d topic(s)\n", len(banks))
	}

	if cfg.Events.Enabled {
		fmt.Print("Events:    ")
		conn, err := events.NewConnection(cfg.Events.URL, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg.Events.Queue)
		if err != nil {
			fail("%v", err)
		} else {
			fmt.Println("✓ broker reachable")
			_ = conn.Close()
		}
	}

	fmt.Print("Daemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'courseware start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig shows current configuration without secrets
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Courseware Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nStorage:")
	fmt.Printf("  backend: %s\n", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendFile, config.BackendSQLite:
		fmt.Printf("  path: %s\n", cfg.Storage.Path)
	case config.BackendPostgres, config.BackendMySQL:
		fmt.Printf("  table: %s\n", cfg.Storage.Table)
		fmt.Printf("  dsn: %s\n", secretStatus(cfg.Storage.DSN))
	case config.BackendRedis:
		fmt.Printf("  addr: %s db=%d prefix=%s\n", cfg.Storage.Redis.Addr, cfg.Storage.Redis.DB, cfg.Storage.Redis.Prefix)
		fmt.Printf("  password: %s\n", secretStatus(cfg.Storage.Redis.Password))
	case config.BackendMemory:
		fmt.Printf("  quota_bytes: %d\n", cfg.Storage.QuotaBytes)
	}
	fmt.Printf("  resilient: %t\n", cfg.Storage.Resilient)

	fmt.Println("\nQuiz:")
	fmt.Printf("  question_ttl: %s\n", cfg.Quiz.QuestionTTL)
	fmt.Printf("  progress_ttl: %s\n", cfg.Quiz.ProgressTTL)
	fmt.Printf("  max_topics: %d\n", cfg.Quiz.MaxTopics)
	fmt.Printf("  max_results: %d\n", cfg.Quiz.MaxResults)
	fmt.Printf("  schema_version: %s\n", cfg.Quiz.SchemaVersion)

	fmt.Println("\nEditor:")
	fmt.Printf("  auto_save_delay: %s\n", cfg.Editor.AutoSaveDelay())

	fmt.Println("\nEvents:")
	fmt.Printf("  enabled: %t\n", cfg.Events.Enabled)
	if cfg.Events.Enabled {
		fmt.Printf("  queue: %s\n", cfg.Events.Queue)
		fmt.Printf("  url: %s\n", secretStatus(cfg.Events.URL))
	}

	fmt.Println("\nContent:")
	fmt.Printf("  dir: %s\n", cfg.Content.Dir)
	fmt.Printf("  questions_per_quiz: %d\n", cfg.Content.QuestionsPerQuiz)

	dir, _ := config.Dir()
	fmt.Printf("\nConfig path: %s\n", filepath.Join(dir, "config.yaml"))
	return nil
}

func secretStatus(v string) string {
	if v == "" {
		return "✗ not set"
	}
	return "✓ set"
}
