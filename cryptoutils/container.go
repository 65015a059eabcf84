package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/docsig/signature-service/interfaces"
)

// Container format: magic || version || salt(16) || nonce(12) || AES-256-GCM ciphertext.
// The AES key is derived from the password with Argon2id; the GCM tag makes
// the container tamper-evident, so a wrong password and a corrupted
// container are indistinguishable on open.
const (
	containerMagic   = "SIGC"
	containerVersion = 1

	containerSaltSize  = 16
	containerNonceSize = 12
)

// Argon2id parameters: time=1, memory=64MiB, threads=4, 32-byte key.
func deriveContainerKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

// Credential is the decrypted content of a certificate container: a
// signing key and its self-signed certificate. Credentials are transient,
// they live only for the duration of a signing call.
type Credential struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// SignerName returns the certificate's subject common name.
func (c *Credential) SignerName() string {
	return c.Certificate.Subject.CommonName
}

// IssueCertificate generates a fresh RSA-2048 keypair, builds a self-signed
// certificate binding subjectName and organization to the public key, and
// seals the private key together with the certificate into a
// password-protected container.
//
// The certificate carries a random 128-bit serial number and a one year
// validity window. No password strength policy is enforced here beyond
// presence; that decision belongs to the boundary.
func IssueCertificate(subjectName, organization, password string) ([]byte, error) {
	if subjectName == "" {
		return nil, interfaces.E(interfaces.KindInvalidInput, "subject name must not be empty")
	}
	if password == "" {
		return nil, interfaces.E(interfaces.KindInvalidInput, "password must not be empty")
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate key: %w", err)
	}

	// Generate serial number
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   subjectName,
			Organization: []string{organization},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0), // 1 year validity
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	payload := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	payload = append(payload, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})...)

	return sealContainer(payload, password)
}

func sealContainer(payload []byte, password string) ([]byte, error) {
	salt := make([]byte, containerSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, containerNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesBlock, err := aes.NewCipher(deriveContainerKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, payload, []byte(containerMagic))

	result := make([]byte, 0, len(containerMagic)+1+len(salt)+len(nonce)+len(ciphertext))
	result = append(result, containerMagic...)
	result = append(result, containerVersion)
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result, nil
}

// OpenContainer decrypts a certificate container with the given password
// and parses the credential inside. Wrong passwords, truncated data and
// tampered containers all fail with an invalid-password error.
func OpenContainer(data []byte, password string) (*Credential, error) {
	headerLen := len(containerMagic) + 1 + containerSaltSize + containerNonceSize
	if len(data) < headerLen || string(data[:len(containerMagic)]) != containerMagic {
		return nil, interfaces.E(interfaces.KindInvalidPassword, "invalid or corrupt certificate container")
	}
	if data[len(containerMagic)] != containerVersion {
		return nil, interfaces.Errorf(interfaces.KindInvalidPassword, "unsupported container version %d", data[len(containerMagic)])
	}

	salt := data[len(containerMagic)+1 : len(containerMagic)+1+containerSaltSize]
	nonce := data[len(containerMagic)+1+containerSaltSize : headerLen]
	ciphertext := data[headerLen:]

	aesBlock, err := aes.NewCipher(deriveContainerKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	payload, err := aesGCM.Open(nil, nonce, ciphertext, []byte(containerMagic))
	if err != nil {
		return nil, interfaces.E(interfaces.KindInvalidPassword, "wrong password or corrupt certificate container")
	}

	return parseCredential(payload)
}

func parseCredential(payload []byte) (*Credential, error) {
	var key *rsa.PrivateKey
	var cert *x509.Certificate

	rest := payload
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "PRIVATE KEY":
			parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, interfaces.Wrap(interfaces.KindInvalidPassword, "container holds an unparsable private key", err)
			}
			rsaKey, ok := parsed.(*rsa.PrivateKey)
			if !ok {
				return nil, interfaces.E(interfaces.KindInvalidPassword, "container private key is not an RSA key")
			}
			key = rsaKey
		case "CERTIFICATE":
			parsed, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, interfaces.Wrap(interfaces.KindInvalidPassword, "container holds an unparsable certificate", err)
			}
			cert = parsed
		}
	}

	if key == nil || cert == nil {
		return nil, interfaces.E(interfaces.KindInvalidPassword, "container must hold both a private key and a certificate")
	}
	return &Credential{PrivateKey: key, Certificate: cert}, nil
}
