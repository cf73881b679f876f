package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/plexar-dev/plexar/pkg/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	// Intercept SIGINT and SIGTERM to ensure we clean up before exiting.
	// This is especially important for long-running commands.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %s", err)
	}
}
