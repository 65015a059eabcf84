// Package signing implements the detached signature engine: keypair
// generation with optional directory registration, file signing, and
// verification against registered or uploaded public keys.
package signing

import (
	"fmt"
	"log/slog"

	"github.com/docsig/signature-service/cryptoutils"
	"github.com/docsig/signature-service/interfaces"
)

// VerifyResult is the outcome of a verification call. A signature that
// does not check out is a regular result with Valid=false, never an error.
type VerifyResult struct {
	Valid  bool
	Signer string
	Msg    string
}

const (
	validMessage   = "signature is valid: the document is intact and the signer is authentic"
	invalidMessage = "signature is invalid: the document may have been modified or was signed by a different key"
)

// Service binds the detached signing primitives to the key directory.
type Service struct {
	dir interfaces.Directory
	log *slog.Logger
}

// New creates a signing service backed by the given directory.
func New(dir interfaces.Directory, log *slog.Logger) *Service {
	return &Service{dir: dir, log: log}
}

// GenerateKeypair generates a fresh RSA keypair of the given size.
func (s *Service) GenerateKeypair(bits int) (*interfaces.KeyPair, error) {
	return cryptoutils.GenerateRSAKeypair(bits)
}

// GenerateAndRegister generates a keypair and registers its public half in
// the directory. If registration fails the keypair is discarded and the
// failure surfaced; no partially registered state is left behind.
func (s *Service) GenerateAndRegister(name, department string, bits int) (*interfaces.KeyPair, *interfaces.DirectoryEntry, error) {
	pair, err := cryptoutils.GenerateRSAKeypair(bits)
	if err != nil {
		return nil, nil, err
	}

	entry, err := s.dir.Register(name, department, pair.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register generated key: %w", err)
	}

	s.log.Info("Generated and registered keypair", "id", entry.ID, "bits", bits)
	return pair, entry, nil
}

// Sign signs arbitrary bytes with a caller-supplied private key.
func (s *Service) Sign(data []byte, privateKey interfaces.PrivateKeyPEM) ([]byte, error) {
	return cryptoutils.SignDetached(data, privateKey)
}

// Verify checks a detached signature against the registered public key
// identified by keyID. The signer name is populated from the directory
// entry whenever the id is known, regardless of the validity outcome.
func (s *Service) Verify(data, signature []byte, keyID string) (*VerifyResult, error) {
	entry, err := s.dir.Lookup(keyID)
	if err != nil {
		if interfaces.KindOf(err) == interfaces.KindNotFound {
			return nil, interfaces.Errorf(interfaces.KindUnknownSigner, "signer %q is not registered in the directory", keyID)
		}
		return nil, err
	}

	valid, err := cryptoutils.VerifyDetached(data, signature, entry.PublicKey)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Valid:  valid,
		Signer: fmt.Sprintf("%s (%s)", entry.Name, entry.Department),
		Msg:    resultMessage(valid),
	}, nil
}

// VerifyWithKey checks a detached signature against an uploaded public key
// instead of a directory entry.
func (s *Service) VerifyWithKey(data, signature []byte, publicKey interfaces.PublicKeyPEM) (*VerifyResult, error) {
	valid, err := cryptoutils.VerifyDetached(data, signature, publicKey)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Valid:  valid,
		Signer: "Uploaded Key",
		Msg:    resultMessage(valid),
	}, nil
}

func resultMessage(valid bool) string {
	if valid {
		return validMessage
	}
	return invalidMessage
}
