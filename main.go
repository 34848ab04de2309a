package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"signaturedemo/config"
	"signaturedemo/cryptoutils/rsapss"
	"signaturedemo/demo"
	"signaturedemo/logger"
	"signaturedemo/telemetry"
)

func main() {
	cfg := config.NewDefaultConfig()

	app := &cli.App{
		Name:  "signaturedemo",
		Usage: "Generate an RSA key pair, sign a message with RSA-PSS and verify it against the original and a tampered copy",
		Flags: flags(cfg),
		Action: func(c *cli.Context) error {
			return run(c.Context, cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "signaturedemo: %v\n", err)
		os.Exit(1)
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "bits",
			Usage:       "RSA modulus size in bits",
			EnvVars:     []string{"RSA_MODULUS_BITS"},
			Value:       cfg.ModulusBits,
			Destination: &cfg.ModulusBits,
		},
		&cli.IntFlag{
			Name:        "exponent",
			Usage:       "RSA public exponent",
			EnvVars:     []string{"RSA_PUBLIC_EXPONENT"},
			Value:       cfg.PublicExponent,
			Destination: &cfg.PublicExponent,
		},
		&cli.IntFlag{
			Name:        "min-bits",
			Usage:       "Smallest modulus size the key generator accepts",
			EnvVars:     []string{"RSA_MIN_MODULUS_BITS"},
			Value:       cfg.MinModulusBits,
			Destination: &cfg.MinModulusBits,
		},
		&cli.StringFlag{
			Name:        "message",
			Aliases:     []string{"m"},
			Usage:       "Message to sign",
			EnvVars:     []string{"SIGN_MESSAGE"},
			Value:       cfg.Message,
			Destination: &cfg.Message,
		},
		&cli.StringFlag{
			Name:        "tampered",
			Usage:       "Altered message checked against the original signature",
			EnvVars:     []string{"TAMPERED_MESSAGE"},
			Value:       cfg.TamperedMessage,
			Destination: &cfg.TamperedMessage,
		},
		&cli.IntFlag{
			Name:        "preview",
			Usage:       "Number of signature bytes shown in the preview",
			EnvVars:     []string{"SIGNATURE_PREVIEW_BYTES"},
			Value:       cfg.PreviewBytes,
			Destination: &cfg.PreviewBytes,
		},
		&cli.BoolFlag{
			Name:        "show-public-key",
			Usage:       "Print the public key as PEM",
			Destination: &cfg.ShowPublicKey,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn, error or fatal",
			EnvVars:     []string{"LOG_LEVEL"},
			Value:       cfg.LogLevel,
			Destination: &cfg.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "text or json",
			EnvVars:     []string{"LOG_FORMAT"},
			Value:       cfg.LogFormat,
			Destination: &cfg.LogFormat,
		},
		&cli.BoolFlag{
			Name:        "telemetry",
			Usage:       "Export traces, metrics and logs to stderr",
			EnvVars:     []string{"TELEMETRY"},
			Destination: &cfg.Telemetry,
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry,
		ServiceName: cfg.ServiceName,
		Writer:      os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down telemetry: %v\n", err)
		}
	}()

	log := newLogger(cfg, tel)
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()

	log.Info(ctx, "Starting signature walkthrough",
		logger.F("bits", cfg.ModulusBits),
		logger.F("exponent", cfg.PublicExponent),
	)

	runner, err := demo.NewRunner(cfg, rsapss.NewService(rsapss.WithMinModulusBits(cfg.MinModulusBits)),
		demo.WithOutput(os.Stdout),
		demo.WithLogger(log),
		demo.WithTelemetry(tel),
	)
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx)
	return err
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) *logger.Logger {
	level, _ := logger.ParseLevel(cfg.LogLevel)

	var formatter logger.Formatter = &logger.TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  time.RFC3339,
		IncludeCaller:    true,
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		formatter = &logger.JsonFormatter{}
	}

	options := []logger.LoggerOption{
		logger.WithService(cfg.ServiceName),
		logger.WithLevel(level),
		logger.WithHandler(logger.NewConsoleHandler(os.Stderr, formatter)),
	}
	if cfg.Telemetry {
		options = append(options, logger.WithHandler(logger.NewOTelHandler(tel.Logger)))
	}

	return logger.NewLogger(options...)
}
