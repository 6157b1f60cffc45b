package crypto

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// Encryptor handles encryption and decryption of cloud credentials using age.
type Encryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewEncryptor creates a new Encryptor from an age private key string.
// If key is empty, a new identity is generated (useful for tests; data
// encrypted with a generated key does not survive a restart).
func NewEncryptor(key string) (*Encryptor, error) {
	var identity *age.X25519Identity
	var err error

	if key == "" {
		identity, err = age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
	} else {
		identity, err = age.ParseX25519Identity(key)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
	}

	return &Encryptor{
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

// GenerateKey generates a new encryption key and returns it.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	return identity.String(), nil
}

// Encrypt encrypts plaintext data and returns the ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing encryptor: %w", err)
	}

	return buf.Bytes(), nil
}

// Decrypt decrypts ciphertext and returns the plaintext.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("creating decryptor: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}

	return plaintext, nil
}

// PublicKey returns the public key (recipient) as a string.
func (e *Encryptor) PublicKey() string {
	return e.recipient.String()
}
