package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"order-service/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// envelope is the self-describing ciphertext format written to the session
// store. It carries its own wrapped data key so decryption needs no shared
// key cache.
type envelope struct {
	Ciphertext   string `json:"ct"`
	EncryptedDEK string `json:"dek"`
	KeyID        string `json:"kid"`
	Version      int    `json:"v"`
}

// Manager envelope-encrypts sensitive payloads at rest. With KMS enabled,
// data keys come from AWS KMS; in development a per-call random key is
// wrapped with base64 only.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
	keyID      string
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !m.config.KMS.Enabled || m.kmsClient == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
		}
		return &dataKey{
			plaintext:  key,
			ciphertext: []byte(base64.StdEncoding.EncodeToString(key)),
			keyID:      "local",
		}, nil
	}

	out, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	return &dataKey{
		plaintext:  out.Plaintext,
		ciphertext: out.CiphertextBlob,
		keyID:      m.config.KMS.KeyID,
	}, nil
}

func (m *Manager) unwrapDataKey(ctx context.Context, env *envelope) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(env.EncryptedDEK)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	if env.KeyID == "local" {
		// Dev envelopes wrap the key with base64 twice (once here, once in
		// generateDataKey).
		key, err := base64.StdEncoding.DecodeString(string(wrapped))
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		return key, nil
	}

	if m.kmsClient == nil {
		return nil, fmt.Errorf("%w: kms client not configured for key %s", ErrDecryptionFailed, env.KeyID)
	}
	out, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(env.KeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return out.Plaintext, nil
}

// EncryptPayload seals a payload under a fresh data key and returns the
// serialized envelope.
func (m *Manager) EncryptPayload(ctx context.Context, plaintext []byte) (string, error) {
	dk, err := m.generateDataKey(ctx)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(dk.plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	env := envelope{
		Ciphertext:   base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK: base64.StdEncoding.EncodeToString(dk.ciphertext),
		KeyID:        dk.keyID,
		Version:      1,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return string(raw), nil
}

// DecryptPayload opens a serialized envelope produced by EncryptPayload.
func (m *Manager) DecryptPayload(ctx context.Context, blob string) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, ErrDecryptionFailed
	}

	key, err := m.unwrapDataKey(ctx, &env)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
