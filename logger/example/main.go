package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"signaturedemo/logger"
	"signaturedemo/telemetry"
)

func main() {
	ctx := context.Background()

	// Export OpenTelemetry records next to the console output
	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     os.Getenv("TELEMETRY") != "",
		ServiceName: "logger-example",
		Writer:      os.Stderr,
		Pretty:      true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up telemetry: %v\n", err)
		os.Exit(1)
	}
	defer tel.Shutdown(ctx)

	log := logger.NewLogger(
		logger.WithService("logger-example"),
		logger.WithLevel(logger.InfoLevel),
		logger.WithHandler(logger.NewConsoleHandler(os.Stdout, &logger.TextFormatter{
			IncludeTimestamp: true,
			TimestampFormat:  time.RFC3339,
			IncludeCaller:    true,
		})),
		logger.WithHandler(logger.NewOTelHandler(tel.Logger)),
	)
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()

	if os.Getenv("ENVIRONMENT") == "development" {
		log.SetLevel(logger.DebugLevel)
	}

	ctx, span := tel.Tracer.Start(ctx, "example")
	defer span.End()

	log.Info(ctx, "Key pair generated", logger.F("bits", 2048))
	log.Debug(ctx, "Only visible in development")
	log.With(logger.F("stage", "VERIFIED_TAMPERED")).
		WithError(errors.New("crypto/rsa: verification error")).
		Context(ctx).
		Warn("Tampered message rejected")
}
