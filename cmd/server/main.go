package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/hephaestus/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to the server YAML config")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cleanup, err := injector.InitializeServer(injector.ConfigPath(*configPath))
	if err != nil {
		fmt.Println("Error initializing server:", err)
		os.Exit(1)
	}
	defer cleanup()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	// Start the server
	if err := srv.Start(ctx); err != nil {
		fmt.Println("Error starting server:", err)
		return
	}

	<-stopCh
	cancel()
	if err := srv.Stop(); err != nil {
		fmt.Println("Error stopping server:", err)
	}
}
