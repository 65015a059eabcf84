// Package cryptoutils implements the cryptographic primitives of the
// signature service: RSA keypair generation, detached SHA-256/PKCS#1 v1.5
// signatures, self-signed certificate issuance and password-protected
// credential containers.
package cryptoutils

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/docsig/signature-service/interfaces"
)

// SupportedKeySizes lists the RSA modulus sizes the service will generate.
var SupportedKeySizes = []int{2048, 3072, 4096}

// GenerateRSAKeypair generates a fresh RSA keypair from crypto/rand and
// returns it PEM-encoded (PKCS#8 private key, PKIX public key).
// Unsupported sizes fail with an invalid-input error.
func GenerateRSAKeypair(bits int) (*interfaces.KeyPair, error) {
	if !isSupportedKeySize(bits) {
		return nil, interfaces.Errorf(interfaces.KindInvalidInput, "key size must be one of %v, got %d", SupportedKeySizes, bits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &interfaces.KeyPair{
		PrivateKey: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}),
		PublicKey:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}),
	}, nil
}

func isSupportedKeySize(bits int) bool {
	for _, s := range SupportedKeySizes {
		if bits == s {
			return true
		}
	}
	return false
}

// ParseRSAPrivateKey parses a PEM-encoded RSA private key.
// PKCS#8 is tried first, then PKCS#1.
func ParseRSAPrivateKey(keyPEM interfaces.PrivateKeyPEM) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, interfaces.E(interfaces.KindInvalidKey, "failed to decode private key PEM block")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS#1 format if PKCS#8 fails
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, interfaces.Wrap(interfaces.KindInvalidKey, "failed to parse private key", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, interfaces.E(interfaces.KindInvalidKey, "private key is not an RSA key")
	}
	return rsaKey, nil
}

// ParseRSAPublicKey parses a PEM-encoded RSA public key.
// PKIX is tried first, then PKCS#1.
func ParseRSAPublicKey(keyPEM interfaces.PublicKeyPEM) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, interfaces.E(interfaces.KindInvalidKey, "failed to decode public key PEM block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, interfaces.Wrap(interfaces.KindInvalidKey, "failed to parse public key", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, interfaces.E(interfaces.KindInvalidKey, "public key is not an RSA key")
	}
	return rsaKey, nil
}

// SignDetached computes the SHA-256 digest of data and signs it with the
// given private key using RSA PKCS#1 v1.5. The padding scheme is
// deterministic: signing the same bytes with the same key always yields
// the same signature.
func SignDetached(data []byte, keyPEM interfaces.PrivateKeyPEM) ([]byte, error) {
	key, err := ParseRSAPrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return signature, nil
}

// VerifyDetached recomputes the SHA-256 digest of data and checks signature
// against it with the given public key. A cryptographic mismatch is not an
// error: it returns (false, nil). Only unusable key material fails.
func VerifyDetached(data, signature []byte, keyPEM interfaces.PublicKeyPEM) (bool, error) {
	key, err := ParseRSAPublicKey(keyPEM)
	if err != nil {
		return false, err
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return false, nil
	}
	return true, nil
}
