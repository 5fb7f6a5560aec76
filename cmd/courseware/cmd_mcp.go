package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/felixgeelhaar/courseware/internal/mcp"
)

// cmdMCP serves the quiz cache tools over stdio
func cmdMCP() error {
	cache, closeFn, err := openCache()
	if err != nil {
		return err
	}
	defer closeFn()

	srv := mcpserver.NewServer(mcpserver.Config{
		Cache:   cache,
		Version: Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ServeStdio(ctx)
}
