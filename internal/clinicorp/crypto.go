package clinicorp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	cipherPrefix  = "enc:"
	keySalt       = "clinicorp-api-salt"
	keyIterations = 100000
	gcmIVSize     = 12
)

// SecretBox encrypts credential values at rest. The key is derived from a
// server-held passphrase with PBKDF2-SHA256 and a fixed salt. With no
// passphrase configured the box is a pass-through: Encrypt stores plaintext
// and Decrypt returns stored values unmodified.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives the AES-256-GCM key from passphrase. An empty
// passphrase yields a pass-through box rather than an error.
func NewSecretBox(passphrase string) (*SecretBox, error) {
	if passphrase == "" {
		return &SecretBox{}, nil
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), keyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("clinicorp: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("clinicorp: create GCM: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Ciphertext is the parsed form of a stored secret: either plaintext or a
// sentinel-tagged AES-GCM payload. Stored format: enc:<iv_b64>:<cipher_b64>.
type Ciphertext struct {
	Encrypted bool
	IV        []byte
	Data      []byte
	Plain     string
}

// ParseCiphertext classifies a stored value. Values without the sentinel
// prefix, and tagged values that fail to decode, are treated as plaintext.
func ParseCiphertext(stored string) Ciphertext {
	if !strings.HasPrefix(stored, cipherPrefix) {
		return Ciphertext{Plain: stored}
	}
	parts := strings.SplitN(stored, ":", 3)
	if len(parts) != 3 {
		return Ciphertext{Plain: stored}
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != gcmIVSize {
		return Ciphertext{Plain: stored}
	}
	data, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return Ciphertext{Plain: stored}
	}
	return Ciphertext{Encrypted: true, IV: iv, Data: data}
}

// String renders the stored representation, the inverse of ParseCiphertext.
func (c Ciphertext) String() string {
	if !c.Encrypted {
		return c.Plain
	}
	return cipherPrefix + base64.StdEncoding.EncodeToString(c.IV) + ":" + base64.StdEncoding.EncodeToString(c.Data)
}

// Encrypt seals plain into the tagged stored format. Empty input and
// pass-through boxes return the input unchanged.
func (b *SecretBox) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if b == nil || b.aead == nil {
		return plain, nil
	}
	iv := make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("clinicorp: generate iv: %w", err)
	}
	sealed := b.aead.Seal(nil, iv, []byte(plain), nil)
	return Ciphertext{Encrypted: true, IV: iv, Data: sealed}.String(), nil
}

// DecryptOutcome reports how a stored value was recovered. Degraded means the
// value is returned as-is because it could not be decrypted; callers should
// log it, not fail the request.
type DecryptOutcome struct {
	Value    string
	Degraded bool
	Reason   string
}

// Decrypt opens a stored value. Untagged values pass through unchanged (not
// degraded). Tagged values decrypt when a key is configured; a missing key or
// a failed open degrades to the original text rather than erroring.
func (b *SecretBox) Decrypt(stored string) DecryptOutcome {
	ct := ParseCiphertext(stored)
	if !ct.Encrypted {
		return DecryptOutcome{Value: ct.Plain}
	}
	if b == nil || b.aead == nil {
		return DecryptOutcome{Value: stored, Degraded: true, Reason: "no encryption passphrase configured"}
	}
	plain, err := b.aead.Open(nil, ct.IV, ct.Data, nil)
	if err != nil {
		return DecryptOutcome{Value: stored, Degraded: true, Reason: fmt.Sprintf("decrypt failed: %v", err)}
	}
	return DecryptOutcome{Value: string(plain)}
}
