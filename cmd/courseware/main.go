package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7433"
	pidFile    = "coursewared.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs(os.Args[2:])
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "stats":
		err = cmdStats(os.Args[2:])
	case "topics":
		err = cmdTopics()
	case "inspect":
		err = cmdInspect()
	case "wipe":
		err = cmdWipe(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("courseware %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Courseware - Offline quiz cache and code editor sessions

Usage:
  courseware <command> [arguments]

Setup Commands:
  init                    Initialize ~/.courseware (first-time setup)
  doctor                  Check storage, question banks and daemon
  config                  Show current configuration

Daemon Commands:
  start                   Start the courseware daemon
  stop                    Stop the courseware daemon
  status                  Show daemon status
  logs [n]                Show the last n daemon log records (default 20)

Quiz Commands:
  stats [topic]           Show attempt statistics
  topics                  Show the latest result per topic
  inspect                 Show what the quiz cache holds
  wipe [--yes]            Delete all cached quiz data

Editor Commands:
  validate <file> [lang]  Check a file for syntax and style problems

Integration Commands:
  mcp                     Start MCP server on stdio

Other:
  help                    Show this help message
  version                 Show version information

Examples:
  courseware init
  courseware start
  courseware stats closures
  courseware validate lesson.ts typescript`)
}

// renderProgressBar creates a visual progress bar for a 0-100 percentage
func renderProgressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
