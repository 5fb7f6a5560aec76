package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/courseware/internal/config"
)

const defaultLogLines = 20

// daemonClient talks to a running coursewared
type daemonClient struct {
	base string
	http *http.Client
}

// newDaemonClient targets the configured bind address, or daemonAddr when the
// config cannot be read
func newDaemonClient() *daemonClient {
	base := daemonAddr
	if cfg, err := config.LoadLocalConfig(); err == nil {
		base = daemonURL(cfg.Daemon.Bind, cfg.Daemon.Port)
	}
	return &daemonClient{base: base, http: &http.Client{Timeout: 2 * time.Second}}
}

// daemonURL maps a listen address to one a local client can dial
func daemonURL(bind string, port int) string {
	switch bind {
	case "", "0.0.0.0", "::":
		bind = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(bind, strconv.Itoa(port))
}

// daemonHealth mirrors GET /v1/health
type daemonHealth struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// daemonStatus mirrors GET /v1/status
type daemonStatus struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Storage        string `json:"storage"`
	Events         bool   `json:"events"`
	EditorSessions int    `json:"editor_sessions"`
}

func (c *daemonClient) getJSON(path string, v any) (int, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// health reports the daemon's health. A degraded daemon answers 503 but is
// still running.
func (c *daemonClient) health() (daemonHealth, bool) {
	var h daemonHealth
	code, err := c.getJSON("/v1/health", &h)
	if err != nil {
		return daemonHealth{}, false
	}
	return h, code == http.StatusOK || code == http.StatusServiceUnavailable
}

func (c *daemonClient) running() bool {
	_, ok := c.health()
	return ok
}

func (c *daemonClient) status() (daemonStatus, error) {
	var st daemonStatus
	code, err := c.getJSON("/v1/status", &st)
	if err != nil {
		return daemonStatus{}, fmt.Errorf("get status: %w", err)
	}
	if code != http.StatusOK {
		return daemonStatus{}, fmt.Errorf("get status: unexpected status %d", code)
	}
	return st, nil
}

func isRunning() bool {
	return newDaemonClient().running()
}

// poll checks cond every 100ms up to attempts times, printing a dot per miss
func poll(attempts int, cond func() bool) bool {
	for i := 0; i < attempts; i++ {
		time.Sleep(100 * time.Millisecond)
		if cond() {
			fmt.Println(" ✓")
			return true
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return false
}

// cmdStart launches coursewared in the background and waits for it to answer
func cmdStart() error {
	client := newDaemonClient()
	if client.running() {
		fmt.Printf("✓ Daemon is already running at %s\n", client.base)
		return nil
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup courseware directory: %w", err)
	}
	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = dir
	configureDaemonProcess(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	if !poll(30, client.running) {
		return fmt.Errorf("daemon failed to start (check 'courseware logs')")
	}
	fmt.Printf("Daemon running at %s\n", client.base)
	return nil
}

// readPID returns the pid coursewared recorded in dir
func readPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", pidFile)
	}
	return pid, nil
}

// cmdStop sends SIGTERM; the daemon closes open editor sessions before exiting
func cmdStop() error {
	client := newDaemonClient()
	if !client.running() {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	pid, err := readPID(dir)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}

	if st, err := client.status(); err == nil && st.EditorSessions > 0 {
		fmt.Printf("Closing %d editor session(s)\n", st.EditorSessions)
	}
	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	if !poll(50, func() bool { return !client.running() }) {
		return fmt.Errorf("daemon did not stop gracefully")
	}
	return nil
}

func cmdStatus() error {
	client := newDaemonClient()
	h, ok := client.health()
	if !ok {
		fmt.Println("Daemon:   stopped")
		return nil
	}
	st, err := client.status()
	if err != nil {
		return err
	}

	fmt.Printf("Daemon:   %s (%s)\n", st.Status, h.Status)
	fmt.Printf("Address:  %s\n", client.base)
	fmt.Printf("Version:  %s\n", st.Version)
	fmt.Printf("Storage:  %s\n", st.Storage)
	events := "disabled"
	if st.Events {
		events = "publishing results"
	}
	fmt.Printf("Events:   %s\n", events)
	fmt.Printf("Sessions: %d open\n", st.EditorSessions)
	if h.Status != "healthy" {
		fmt.Println("\nStorage is not readable; run 'courseware doctor'.")
	}
	return nil
}

// cmdLogs prints the last n daemon log records
func cmdLogs(args []string) error {
	n := defaultLogLines
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid line count %q", args[0])
		}
		n = v
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	file, err := os.Open(filepath.Join(dir, "logs", "coursewared.log"))
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	lines, err := tailLines(file, n)
	if err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	for _, line := range lines {
		fmt.Println(formatLogRecord(line))
	}
	return nil
}

// tailLines returns the last n lines of r
func tailLines(r io.Reader, n int) ([]string, error) {
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	return ring, scanner.Err()
}

// formatLogRecord renders one JSON slog record as "15:04:05 LEVEL msg k=v".
// Lines that are not JSON are returned unchanged.
func formatLogRecord(line string) string {
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return line
	}

	ts, _ := rec["time"].(string)
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		ts = t.Format("15:04:05")
	}
	level, _ := rec["level"].(string)
	msg, _ := rec["msg"].(string)
	delete(rec, "time")
	delete(rec, "level")
	delete(rec, "msg")

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", ts, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, rec[k])
	}
	return b.String()
}

// findDaemonBinary looks in PATH, then next to this binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("coursewared"); err == nil {
		return path, nil
	}
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "coursewared")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("coursewared not found in PATH or next to courseware")
}
