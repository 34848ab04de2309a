// Package rsapss wraps crypto/rsa for RSA-PSS signatures over SHA-256 digests.
// Every primitive is delegated to the standard library; this package only fixes the
// parameters (MGF1-SHA-256, maximal salt length) and shapes the results.
package rsapss

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	// DefaultPublicExponent is the only exponent crypto/rsa generates keys with.
	DefaultPublicExponent = 65537
	// DefaultModulusBits is the key size used when none is configured.
	DefaultModulusBits = 2048
	// MinModulusBits is the default floor below which key generation is refused.
	MinModulusBits = 2048

	// rsaFloorBits is the smallest key crypto/rsa will generate.
	rsaFloorBits = 1024
)

// Error taxonomy. Wrapped errors always match one of the three top-level sentinels.
var (
	ErrGeneration       = errors.New("rsapss: key generation failed")
	ErrSigning          = errors.New("rsapss: signing failed")
	ErrInvalidSignature = errors.New("rsapss: invalid signature")

	ErrModulusTooSmall     = errors.New("modulus size below minimum")
	ErrUnsupportedExponent = errors.New("unsupported public exponent")
	ErrSignatureLength     = errors.New("signature length does not match modulus size")
	ErrInvalidKey          = errors.New("key is nil or incomplete")
)

// Service defines the RSA-PSS operations used by the signing walkthrough
type Service interface {
	// GenerateKeyPair creates a new RSA key pair
	GenerateKeyPair(publicExponent, modulusBits int) (*KeyPair, error)

	// Sign creates an RSA-PSS signature over the SHA-256 digest of message
	Sign(privateKey *rsa.PrivateKey, message []byte) (Signature, error)

	// Verify checks signature against message using the public key
	Verify(publicKey *rsa.PublicKey, message []byte, signature Signature) Result

	// MarshalPublicKeyPEM encodes the public key as a PKIX PEM block
	MarshalPublicKeyPEM(publicKey *rsa.PublicKey) ([]byte, error)

	// ParsePublicKeyPEM decodes a PKIX PEM block into an RSA public key
	ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error)

	// Fingerprint returns the hex SHA-256 of the PKIX encoding of the public key
	Fingerprint(publicKey *rsa.PublicKey) (string, error)

	// EncodeSignatureBase64 encodes a signature as a Base64 string
	EncodeSignatureBase64(signature Signature) string

	// DecodeSignatureBase64 decodes a Base64-encoded signature
	DecodeSignatureBase64(encodedSignature string) (Signature, error)
}

// DefaultService is the default implementation of Service
type DefaultService struct {
	minModulusBits int
}

// Option configures a DefaultService.
type Option func(*DefaultService)

// WithMinModulusBits sets the smallest modulus GenerateKeyPair accepts.
// Values below the crypto/rsa floor of 1024 bits are raised to it.
func WithMinModulusBits(bits int) Option {
	return func(s *DefaultService) {
		if bits < rsaFloorBits {
			bits = rsaFloorBits
		}
		s.minModulusBits = bits
	}
}

// NewService creates a new instance of the default RSA-PSS service
func NewService(opts ...Option) Service {
	s := &DefaultService{minModulusBits: MinModulusBits}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateKeyPair implements Service.GenerateKeyPair
func (s *DefaultService) GenerateKeyPair(publicExponent, modulusBits int) (*KeyPair, error) {
	return generateKeyPair(publicExponent, modulusBits, s.minModulusBits)
}

// Sign implements Service.Sign
func (s *DefaultService) Sign(privateKey *rsa.PrivateKey, message []byte) (Signature, error) {
	return sign(privateKey, message)
}

// Verify implements Service.Verify
func (s *DefaultService) Verify(publicKey *rsa.PublicKey, message []byte, signature Signature) Result {
	return verify(publicKey, message, signature)
}

// MarshalPublicKeyPEM implements Service.MarshalPublicKeyPEM
func (s *DefaultService) MarshalPublicKeyPEM(publicKey *rsa.PublicKey) ([]byte, error) {
	return marshalPublicKeyPEM(publicKey)
}

// ParsePublicKeyPEM implements Service.ParsePublicKeyPEM
func (s *DefaultService) ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	return parsePublicKeyPEM(data)
}

// Fingerprint implements Service.Fingerprint
func (s *DefaultService) Fingerprint(publicKey *rsa.PublicKey) (string, error) {
	return fingerprint(publicKey)
}

// EncodeSignatureBase64 implements Service.EncodeSignatureBase64
func (s *DefaultService) EncodeSignatureBase64(signature Signature) string {
	return base64.StdEncoding.EncodeToString(signature)
}

// DecodeSignatureBase64 implements Service.DecodeSignatureBase64
func (s *DefaultService) DecodeSignatureBase64(encodedSignature string) (Signature, error) {
	return base64.StdEncoding.DecodeString(encodedSignature)
}

// KeyPair contains both private and public keys. PublicKey always points into PrivateKey.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// Signature is an opaque RSA-PSS signature, one modulus length long.
type Signature []byte

// Preview returns the first n bytes of the signature in hex.
func (sig Signature) Preview(n int) string {
	if n < 0 || n > len(sig) {
		n = len(sig)
	}
	return hex.EncodeToString(sig[:n])
}

// Status is the verdict of a verification.
type Status int

const (
	StatusInvalid Status = iota
	StatusValid
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	default:
		return "invalid"
	}
}

// Result is the outcome of Verify. Reason is nil exactly when Status is StatusValid.
type Result struct {
	Status Status
	Reason error
}

// Valid returns a passing result.
func Valid() Result {
	return Result{Status: StatusValid}
}

// Invalid returns a failing result. The reason is wrapped so that it matches ErrInvalidSignature.
func Invalid(reason error) Result {
	switch {
	case reason == nil:
		reason = ErrInvalidSignature
	case !errors.Is(reason, ErrInvalidSignature):
		reason = fmt.Errorf("%w: %w", ErrInvalidSignature, reason)
	}
	return Result{Status: StatusInvalid, Reason: reason}
}

// IsValid reports whether the signature was accepted.
func (r Result) IsValid() bool {
	return r.Status == StatusValid
}

// Err returns nil for a valid result and the rejection reason otherwise.
func (r Result) Err() error {
	if r.IsValid() {
		return nil
	}
	return r.Reason
}

// pssOptions returns the PSS parameters used for both signing and verification
func pssOptions(publicKey *rsa.PublicKey) *rsa.PSSOptions {
	return &rsa.PSSOptions{
		SaltLength: MaxSaltLength(publicKey),
		Hash:       crypto.SHA256,
	}
}

// MaxSaltLength returns the largest PSS salt the modulus allows with a SHA-256 digest.
func MaxSaltLength(publicKey *rsa.PublicKey) int {
	if publicKey == nil || publicKey.N == nil {
		return 0
	}
	emBits := publicKey.N.BitLen() - 1
	emLen := (emBits + 7) / 8
	return emLen - sha256.Size - 2
}

// generateKeyPair creates a new RSA key pair after checking the parameters against minBits
func generateKeyPair(publicExponent, modulusBits, minBits int) (*KeyPair, error) {
	if publicExponent != DefaultPublicExponent {
		return nil, fmt.Errorf("%w: %w: %d (only %d is supported)",
			ErrGeneration, ErrUnsupportedExponent, publicExponent, DefaultPublicExponent)
	}

	if modulusBits < minBits {
		return nil, fmt.Errorf("%w: %w: %d < %d bits", ErrGeneration, ErrModulusTooSmall, modulusBits, minBits)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, modulusBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// sign creates an RSA-PSS signature for the provided message using the private key
func sign(privateKey *rsa.PrivateKey, message []byte) (Signature, error) {
	if privateKey == nil || privateKey.N == nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, ErrInvalidKey)
	}

	digest := sha256.Sum256(message)

	signature, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, digest[:], pssOptions(&privateKey.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return signature, nil
}

// verify checks an RSA-PSS signature against a message using the public key.
// The comparison itself is crypto/rsa's.
func verify(publicKey *rsa.PublicKey, message []byte, signature Signature) Result {
	if publicKey == nil || publicKey.N == nil {
		return Invalid(ErrInvalidKey)
	}

	if len(signature) != publicKey.Size() {
		return Invalid(fmt.Errorf("%w: got %d bytes, want %d", ErrSignatureLength, len(signature), publicKey.Size()))
	}

	digest := sha256.Sum256(message)

	if err := rsa.VerifyPSS(publicKey, crypto.SHA256, digest[:], signature, pssOptions(publicKey)); err != nil {
		return Invalid(err)
	}

	return Valid()
}

// marshalPublicKeyPEM encodes the public key as a PKIX "PUBLIC KEY" PEM block
func marshalPublicKeyPEM(publicKey *rsa.PublicKey) ([]byte, error) {
	if publicKey == nil || publicKey.N == nil {
		return nil, errors.New("public key cannot be nil")
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	}), nil
}

// parsePublicKeyPEM decodes a PKIX PEM block holding an RSA public key
func parsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}

	return rsaKey, nil
}

func fingerprint(publicKey *rsa.PublicKey) (string, error) {
	if publicKey == nil || publicKey.N == nil {
		return "", errors.New("public key cannot be nil")
	}

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}
