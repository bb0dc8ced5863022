// Command admission starts the service application.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"admission/internal/admission"
)

func main() {
	args := os.Args[1:]
	printOnly := false
	if len(args) > 0 && args[0] == "print_config" {
		printOnly = true
		args = args[1:]
	}
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help" || args[0] == "help") {
		printUsage(os.Stdout)
		return
	}

	cfg, err := admission.LoadConfig(admission.LoadOptions{Args: args})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if printOnly {
		if err := admission.PrintConfig(os.Stdout, cfg); err != nil {
			log.Fatalf("failed to print config: %v", err)
		}
		return
	}
	cfg.Logger = admission.NewStdLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := admission.NewApplication(cfg)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("failed to shutdown application: %v", err)
	}
}
