package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatherly-live/server/internal/loadtest"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "Base URL of the server to test")
		users    = flag.Int("users", 50, "Concurrent users racing for the same event")
		capacity = flag.Int("capacity", 10, "Capacity of the contested event")
	)
	flag.Parse()

	fmt.Printf("Firing %d users at one event with %d seats\n\n", *users, *capacity)

	tester := loadtest.New(loadtest.Config{
		BaseURL:  *baseURL,
		Users:    *users,
		Capacity: *capacity,
	})

	stats, err := tester.Run(contextWithSignal())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(stats.Report())
	if stats.Oversold() {
		os.Exit(1)
	}
}

// contextWithSignal returns a context cancelled on SIGINT/SIGTERM.
func contextWithSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping test...")
		cancel()
	}()

	return ctx
}
