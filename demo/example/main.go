package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"signaturedemo/config"
	"signaturedemo/cryptoutils/rsapss"
	"signaturedemo/demo"
	"signaturedemo/logger"
)

func main() {
	cfg := config.NewDefaultConfig()
	cfg.Message = "Transfer 100 EUR to account 42"
	cfg.TamperedMessage = "Transfer 900 EUR to account 42"

	runner, err := demo.NewRunner(cfg, rsapss.NewService(),
		demo.WithLogger(logger.NewLogger(logger.WithHandler(logger.NewConsoleHandler(io.Discard, &logger.TextFormatter{})))),
	)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	report, err := runner.Run(context.Background())
	if err != nil {
		log.Fatalf("Walkthrough failed: %v", err)
	}

	fmt.Printf("\nreached %s: original=%s tampered=%s\n", report.Stage(), report.Original.Status, report.Tampered.Status)
}
