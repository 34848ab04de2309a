// Package demo walks through the RSA-PSS signature lifecycle: it generates a key pair, signs a
// message, verifies the signature against the original and against a tampered message, and
// narrates every step.
package demo

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"signaturedemo/config"
	"signaturedemo/cryptoutils/rsapss"
	"signaturedemo/logger"
	"signaturedemo/telemetry"
)

// Stage is a step of the walkthrough. A run only ever moves forward.
type Stage int

const (
	StageInit Stage = iota
	StageKeysGenerated
	StageMessageSigned
	StageVerifiedOriginal
	StageVerifiedTampered
	StageDone
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageKeysGenerated:
		return "KEYS_GENERATED"
	case StageMessageSigned:
		return "MESSAGE_SIGNED"
	case StageVerifiedOriginal:
		return "VERIFIED_ORIGINAL"
	case StageVerifiedTampered:
		return "VERIFIED_TAMPERED"
	case StageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Report is what a run observed.
type Report struct {
	Stages      []Stage
	Fingerprint string
	Signature   rsapss.Signature
	Original    rsapss.Result
	Tampered    rsapss.Result
}

// Stage returns the last stage the run reached.
func (r *Report) Stage() Stage {
	return r.Stages[len(r.Stages)-1]
}

func (r *Report) advance(s Stage) {
	r.Stages = append(r.Stages, s)
}

// Runner executes the walkthrough once per Run call.
type Runner struct {
	cfg         *config.Config
	service     rsapss.Service
	out         io.Writer
	log         *logger.Logger
	tel         *telemetry.Telemetry
	instruments *telemetry.Instruments
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput sets where narration is written. Defaults to os.Stdout.
func WithOutput(out io.Writer) Option {
	return func(r *Runner) {
		r.out = out
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithTelemetry sets the tracer and meter used for each step.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Runner) {
		r.tel = tel
	}
}

// NewRunner creates a Runner for cfg using service for every cryptographic operation.
func NewRunner(cfg *config.Config, service rsapss.Service, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:     cfg,
		service: service,
		out:     os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logger.DefaultLogger(cfg.ServiceName)
	}
	if r.tel == nil {
		r.tel = telemetry.Noop()
	}

	instruments, err := telemetry.NewInstruments(r.tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to register instruments: %w", err)
	}
	r.instruments = instruments

	return r, nil
}

// Run performs the walkthrough. Generation and signing failures abort the run and are
// returned; verification outcomes are reported in the Report and never returned as errors.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Stages: []Stage{StageInit}}

	ctx, span := r.tel.Tracer.Start(ctx, "rsa.walkthrough")
	defer span.End()

	r.say("Starting the RSA digital signature walkthrough...")

	keyPair, err := r.generate(ctx)
	if err != nil {
		return report, r.abort(ctx, span, report, fmt.Errorf("generate key pair: %w", err))
	}
	report.advance(StageKeysGenerated)
	r.say("RSA key pair (private and public) generated successfully.")

	report.Fingerprint, err = r.service.Fingerprint(keyPair.PublicKey)
	if err != nil {
		r.log.With().WithError(err).Context(ctx).Warn("Could not fingerprint public key")
	}
	r.log.With(
		logger.F("stage", StageKeysGenerated.String()),
		logger.F("bits", r.cfg.ModulusBits),
		logger.F("fingerprint", report.Fingerprint),
	).Context(ctx).Info("Key pair ready")

	if r.cfg.ShowPublicKey {
		r.showPublicKey(ctx, keyPair.PublicKey)
	}

	message := []byte(r.cfg.Message)
	r.say("\nOriginal message: '%s'", r.cfg.Message)

	signature, err := r.sign(ctx, keyPair.PrivateKey, message)
	if err != nil {
		return report, r.abort(ctx, span, report, fmt.Errorf("sign message: %w", err))
	}
	report.Signature = signature
	report.advance(StageMessageSigned)
	r.say("Digital signature created (first %d bytes for reference): %s...",
		min(r.cfg.PreviewBytes, len(signature)), signature.Preview(r.cfg.PreviewBytes))
	r.log.With(
		logger.F("stage", StageMessageSigned.String()),
		logger.F("signature_bytes", len(signature)),
		logger.F("signature_b64", r.service.EncodeSignatureBase64(signature)),
	).Context(ctx).Debug("Message signed")

	report.Original = r.verify(ctx, "original", keyPair.PublicKey, message, signature)
	report.advance(StageVerifiedOriginal)
	if report.Original.IsValid() {
		r.say("\nSignature verified successfully. The message is authentic and has not been altered.")
	} else {
		r.say("\nERROR: The signature is not valid. The message may have been altered or the signature forged. Details: %v",
			report.Original.Reason)
		r.log.With(logger.F("stage", StageVerifiedOriginal.String())).
			WithError(report.Original.Reason).
			Context(ctx).Error("Original message was rejected")
	}

	tampered := []byte(r.cfg.TamperedMessage)
	r.say("\n--- Verifying the signature against an ALTERED message: '%s' ---", r.cfg.TamperedMessage)

	report.Tampered = r.verify(ctx, "tampered", keyPair.PublicKey, tampered, signature)
	report.advance(StageVerifiedTampered)
	if report.Tampered.IsValid() {
		r.say("WARNING! The signature IS VALID for the altered message. This should NOT happen.")
		r.log.With(logger.F("stage", StageVerifiedTampered.String())).Context(ctx).Warn("Tampered message was accepted")
	} else {
		r.say("ALERT: The signature is INVALID for the altered message. This is expected: the digital signature detected the tampering.")
		r.say("Specific error: %v", report.Tampered.Reason)
	}

	r.say("\nRSA digital signature and verification walkthrough completed.")
	report.advance(StageDone)

	r.log.With(
		logger.F("stage", StageDone.String()),
		logger.F("original", report.Original.Status.String()),
		logger.F("tampered", report.Tampered.Status.String()),
	).Context(ctx).Info("Walkthrough finished")

	return report, nil
}

func (r *Runner) generate(ctx context.Context) (*rsapss.KeyPair, error) {
	ctx, span := r.tel.Tracer.Start(ctx, "rsa.generate_key_pair", trace.WithAttributes(
		attribute.Int("rsa.modulus_bits", r.cfg.ModulusBits),
		attribute.Int("rsa.public_exponent", r.cfg.PublicExponent),
	))
	defer span.End()

	start := time.Now()
	keyPair, err := r.service.GenerateKeyPair(r.cfg.PublicExponent, r.cfg.ModulusBits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "key generation failed")
		return nil, err
	}

	r.instruments.KeyGenerations.Add(ctx, 1)
	r.instruments.KeyGenDuration.Record(ctx, time.Since(start).Seconds())
	return keyPair, nil
}

func (r *Runner) sign(ctx context.Context, privateKey *rsa.PrivateKey, message []byte) (rsapss.Signature, error) {
	ctx, span := r.tel.Tracer.Start(ctx, "rsa.sign", trace.WithAttributes(
		attribute.Int("message.bytes", len(message)),
	))
	defer span.End()

	signature, err := r.service.Sign(privateKey, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing failed")
		return nil, err
	}

	r.instruments.Signatures.Add(ctx, 1)
	return signature, nil
}

func (r *Runner) verify(ctx context.Context, label string, publicKey *rsa.PublicKey, message []byte, signature rsapss.Signature) rsapss.Result {
	ctx, span := r.tel.Tracer.Start(ctx, "rsa.verify", trace.WithAttributes(
		attribute.String("message.kind", label),
		attribute.Int("message.bytes", len(message)),
	))
	defer span.End()

	result := r.service.Verify(publicKey, message, signature)

	span.SetAttributes(attribute.String("verification.outcome", result.Status.String()))
	r.instruments.Verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("message.kind", label),
		attribute.String("outcome", result.Status.String()),
	))
	return result
}

func (r *Runner) showPublicKey(ctx context.Context, publicKey *rsa.PublicKey) {
	encoded, err := r.service.MarshalPublicKeyPEM(publicKey)
	if err != nil {
		r.log.With().WithError(err).Context(ctx).Warn("Could not encode public key")
		return
	}
	r.say("\nPublic key:\n%s", encoded)
}

func (r *Runner) abort(ctx context.Context, span trace.Span, report *Report, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.log.With(logger.F("stage", report.Stage().String())).
		WithError(err).
		Context(ctx).Error("Walkthrough aborted")
	return err
}

func (r *Runner) say(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}
