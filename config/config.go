package config

import (
	"errors"
	"fmt"
	"strings"

	"signaturedemo/cryptoutils/rsapss"
	"signaturedemo/logger"
)

// Default walkthrough messages. Validate requires the two to differ.
const (
	DefaultMessage         = "Este es el mensaje que quiero firmar digitalmente."
	DefaultTamperedMessage = "Este es un mensaje modificado."
	DefaultPreviewBytes    = 30
	DefaultServiceName     = "signature-demo"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings of one signing walkthrough run
type Config struct {
	// Key generation
	PublicExponent int
	ModulusBits    int
	MinModulusBits int // Smallest modulus the key generator accepts

	// Messages
	Message         string
	TamperedMessage string

	// Narration
	PreviewBytes  int  // Signature bytes shown in the preview line
	ShowPublicKey bool // Print the public key PEM after generation

	// Observability
	ServiceName string
	LogLevel    string
	LogFormat   string // "text" or "json"
	Telemetry   bool   // Export spans, metrics and logs to stderr
}

// NewDefaultConfig returns a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		PublicExponent:  rsapss.DefaultPublicExponent,
		ModulusBits:     rsapss.DefaultModulusBits,
		MinModulusBits:  rsapss.MinModulusBits,
		Message:         DefaultMessage,
		TamperedMessage: DefaultTamperedMessage,
		PreviewBytes:    DefaultPreviewBytes,
		ServiceName:     DefaultServiceName,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Validate checks the settings that are not cryptographic parameters.
// Exponent and modulus are left to the key generator, which owns those rules.
func (c *Config) Validate() error {
	if c.Message == c.TamperedMessage {
		return fmt.Errorf("%w: tampered message must differ from the original", ErrInvalidConfig)
	}

	if c.PreviewBytes < 0 {
		return fmt.Errorf("%w: preview bytes must not be negative, got %d", ErrInvalidConfig, c.PreviewBytes)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	}

	return nil
}
