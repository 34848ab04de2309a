package demo

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signaturedemo/config"
	"signaturedemo/cryptoutils/rsapss"
	"signaturedemo/logger"
	"signaturedemo/telemetry"
)

// MockService implements rsapss.Service for testing
type MockService struct {
	mock.Mock
}

func (m *MockService) GenerateKeyPair(publicExponent, modulusBits int) (*rsapss.KeyPair, error) {
	args := m.Called(publicExponent, modulusBits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rsapss.KeyPair), args.Error(1)
}

func (m *MockService) Sign(privateKey *rsa.PrivateKey, message []byte) (rsapss.Signature, error) {
	args := m.Called(privateKey, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rsapss.Signature), args.Error(1)
}

func (m *MockService) Verify(publicKey *rsa.PublicKey, message []byte, signature rsapss.Signature) rsapss.Result {
	args := m.Called(publicKey, message, signature)
	return args.Get(0).(rsapss.Result)
}

func (m *MockService) MarshalPublicKeyPEM(publicKey *rsa.PublicKey) ([]byte, error) {
	args := m.Called(publicKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockService) ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rsa.PublicKey), args.Error(1)
}

func (m *MockService) Fingerprint(publicKey *rsa.PublicKey) (string, error) {
	args := m.Called(publicKey)
	return args.String(0), args.Error(1)
}

func (m *MockService) EncodeSignatureBase64(signature rsapss.Signature) string {
	args := m.Called(signature)
	return args.String(0)
}

func (m *MockService) DecodeSignatureBase64(encodedSignature string) (rsapss.Signature, error) {
	args := m.Called(encodedSignature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rsapss.Signature), args.Error(1)
}

func quietLogger(w io.Writer) *logger.Logger {
	return logger.NewLogger(
		logger.WithService("demo-test"),
		logger.WithHandler(logger.NewConsoleHandler(w, &logger.TextFormatter{})),
		logger.WithLevel(logger.DebugLevel),
	)
}

func newTestRunner(t *testing.T, cfg *config.Config, service rsapss.Service, out, logs io.Writer, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithOutput(out), WithLogger(quietLogger(logs))}, opts...)
	runner, err := NewRunner(cfg, service, opts...)
	require.NoError(t, err)
	return runner
}

// assertInOrder checks that every fragment appears in text after the previous one
func assertInOrder(t *testing.T, text string, fragments ...string) {
	t.Helper()
	rest := text
	for _, fragment := range fragments {
		idx := strings.Index(rest, fragment)
		if !assert.GreaterOrEqual(t, idx, 0, "missing or out of order: %q", fragment) {
			return
		}
		rest = rest[idx+len(fragment):]
	}
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "INIT", StageInit.String())
	assert.Equal(t, "KEYS_GENERATED", StageKeysGenerated.String())
	assert.Equal(t, "MESSAGE_SIGNED", StageMessageSigned.String())
	assert.Equal(t, "VERIFIED_ORIGINAL", StageVerifiedOriginal.String())
	assert.Equal(t, "VERIFIED_TAMPERED", StageVerifiedTampered.String())
	assert.Equal(t, "DONE", StageDone.String())
	assert.Equal(t, "UNKNOWN", Stage(99).String())
}

func TestRunner_EndToEnd(t *testing.T) {
	var out, logs bytes.Buffer
	cfg := config.NewDefaultConfig()
	service := rsapss.NewService()

	report, err := newTestRunner(t, cfg, service, &out, &logs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StageInit,
		StageKeysGenerated,
		StageMessageSigned,
		StageVerifiedOriginal,
		StageVerifiedTampered,
		StageDone,
	}, report.Stages)
	assert.Equal(t, StageDone, report.Stage())

	assert.Len(t, report.Signature, 256)
	assert.Len(t, report.Fingerprint, 64)
	assert.True(t, report.Original.IsValid())
	assert.False(t, report.Tampered.IsValid())
	assert.ErrorIs(t, report.Tampered.Reason, rsapss.ErrInvalidSignature)
	assert.ErrorIs(t, report.Tampered.Reason, rsa.ErrVerification)

	assertInOrder(t, out.String(),
		"Starting the RSA digital signature walkthrough...",
		"RSA key pair (private and public) generated successfully.",
		"Original message: 'Este es el mensaje que quiero firmar digitalmente.'",
		"Digital signature created (first 30 bytes for reference): "+report.Signature.Preview(30)+"...",
		"Signature verified successfully.",
		"ALTERED message: 'Este es un mensaje modificado.'",
		"ALERT: The signature is INVALID for the altered message.",
		"Specific error: ",
		"walkthrough completed.",
	)
	assert.NotContains(t, out.String(), "ERROR:")
	assert.NotContains(t, out.String(), "WARNING!")
	assert.NotContains(t, out.String(), "BEGIN PUBLIC KEY")

	assert.Contains(t, logs.String(), "Key pair ready")
	assert.Contains(t, logs.String(), "signature_b64=")
	assert.Contains(t, logs.String(), "Walkthrough finished")
}

func TestRunner_ShowPublicKeyAndTelemetry(t *testing.T) {
	var out, logs, exported bytes.Buffer
	cfg := config.NewDefaultConfig()
	cfg.ShowPublicKey = true
	cfg.PreviewBytes = 4

	tel, err := telemetry.Setup(context.Background(), telemetry.Options{Enabled: true, Writer: &exported})
	require.NoError(t, err)

	report, err := newTestRunner(t, cfg, rsapss.NewService(), &out, &logs, WithTelemetry(tel)).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(context.Background()))

	assert.Equal(t, StageDone, report.Stage())
	assertInOrder(t, out.String(),
		"generated successfully.",
		"-----BEGIN PUBLIC KEY-----",
		"(first 4 bytes for reference): "+report.Signature.Preview(4)+"...",
	)

	for _, name := range []string{"rsa.walkthrough", "rsa.generate_key_pair", "rsa.sign", "rsa.verify", "rsa.pss.verifications"} {
		assert.Contains(t, exported.String(), name)
	}

	// Log entries inside spans carry the trace id
	assert.Contains(t, logs.String(), "trace=")
}

func TestRunner_GenerationErrorAborts(t *testing.T) {
	var out, logs bytes.Buffer
	cfg := config.NewDefaultConfig()
	cfg.ModulusBits = 1024

	report, err := newTestRunner(t, cfg, rsapss.NewService(), &out, &logs).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, rsapss.ErrGeneration)
	assert.ErrorIs(t, err, rsapss.ErrModulusTooSmall)
	assert.Equal(t, StageInit, report.Stage())
	assert.Contains(t, out.String(), "Starting the RSA digital signature walkthrough...")
	assert.NotContains(t, out.String(), "completed")
	assert.Contains(t, logs.String(), "Walkthrough aborted")
}

func TestRunner_SigningErrorAborts(t *testing.T) {
	var out, logs bytes.Buffer
	cfg := config.NewDefaultConfig()
	keyPair := &rsapss.KeyPair{}
	signErr := errors.New("hardware token unplugged")

	service := new(MockService)
	service.On("GenerateKeyPair", cfg.PublicExponent, cfg.ModulusBits).Return(keyPair, nil)
	service.On("Fingerprint", keyPair.PublicKey).Return("abcd", nil)
	service.On("Sign", keyPair.PrivateKey, []byte(cfg.Message)).
		Return(nil, errors.Join(rsapss.ErrSigning, signErr))

	report, err := newTestRunner(t, cfg, service, &out, &logs).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, rsapss.ErrSigning)
	assert.ErrorIs(t, err, signErr)
	assert.Equal(t, StageKeysGenerated, report.Stage())
	assert.Equal(t, "abcd", report.Fingerprint)
	assert.NotContains(t, out.String(), "Digital signature created")
	service.AssertExpectations(t)
	service.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_OriginalRejectedIsReportedAndRunContinues(t *testing.T) {
	var out, logs bytes.Buffer
	cfg := config.NewDefaultConfig()
	keyPair := &rsapss.KeyPair{}
	signature := rsapss.Signature(bytes.Repeat([]byte{0xab}, 256))
	rejected := rsapss.Invalid(rsa.ErrVerification)

	service := new(MockService)
	generateCall := service.On("GenerateKeyPair", cfg.PublicExponent, cfg.ModulusBits).Return(keyPair, nil)
	service.On("Fingerprint", keyPair.PublicKey).Return("abcd", nil)
	signCall := service.On("Sign", keyPair.PrivateKey, []byte(cfg.Message)).Return(signature, nil)
	service.On("EncodeSignatureBase64", signature).Return("q6ur")
	originalCall := service.On("Verify", keyPair.PublicKey, []byte(cfg.Message), signature).Return(rejected)
	tamperedCall := service.On("Verify", keyPair.PublicKey, []byte(cfg.TamperedMessage), signature).Return(rejected)

	mock.InOrder(generateCall, signCall, originalCall, tamperedCall)

	report, err := newTestRunner(t, cfg, service, &out, &logs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageDone, report.Stage())
	assert.False(t, report.Original.IsValid())
	assert.False(t, report.Tampered.IsValid())
	assertInOrder(t, out.String(),
		"ERROR: The signature is not valid.",
		"Details: rsapss: invalid signature: crypto/rsa: verification error",
		"ALERT: The signature is INVALID for the altered message.",
		"walkthrough completed.",
	)
	assert.Contains(t, logs.String(), "Original message was rejected")
	service.AssertExpectations(t)
}

func TestRunner_TamperedAcceptedIsFlagged(t *testing.T) {
	var out, logs bytes.Buffer
	cfg := config.NewDefaultConfig()
	keyPair := &rsapss.KeyPair{}
	signature := rsapss.Signature{1, 2, 3}

	service := new(MockService)
	service.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(keyPair, nil)
	service.On("Fingerprint", mock.Anything).Return("", errors.New("no key material"))
	service.On("Sign", mock.Anything, mock.Anything).Return(signature, nil)
	service.On("EncodeSignatureBase64", signature).Return("AQID")
	service.On("Verify", mock.Anything, mock.Anything, signature).Return(rsapss.Valid())

	report, err := newTestRunner(t, cfg, service, &out, &logs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageDone, report.Stage())
	assert.True(t, report.Tampered.IsValid())
	assert.Contains(t, out.String(), "(first 3 bytes for reference): 010203...")
	assert.Contains(t, out.String(), "WARNING! The signature IS VALID for the altered message.")
	assert.Contains(t, logs.String(), "Could not fingerprint public key")
	assert.Contains(t, logs.String(), "Tampered message was accepted")
}
