// main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lifeline/internal/config"
)

func main() {
	sessionID := flag.String("session", "", "stable session identity (required)")
	workspaceRoot := flag.String("workspace", "", "workspace directory to track for the file state category")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("lifeline: -session is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("lifeline: load config: %v", err)
	}

	app := NewApp(cfg, *sessionID, nil)

	result, err := app.Startup(context.Background(), *workspaceRoot)
	if err != nil {
		log.Fatalf("lifeline: startup: %v", err)
	}

	if result.NeedsResume {
		log.Printf("lifeline: resuming session %s (%s, confidence %.0f%%, fidelity %.0f%%)",
			*sessionID, result.Detection.Reason, result.Detection.Confidence*100, result.Restored.Fidelity*100)
		os.Stdout.WriteString(result.Prompt)
	} else {
		log.Printf("lifeline: session %s started clean", *sessionID)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := app.Shutdown("signal"); err != nil {
		log.Printf("lifeline: shutdown: %v", err)
	}
}
