package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, defaultAppFactory)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogcrawler: %v\n", err)
		os.Exit(1)
	}
}
