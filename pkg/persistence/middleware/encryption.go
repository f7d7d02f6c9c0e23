package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
)

// envelopePrefix marks a record whose answers and final text are sealed in Final.
const envelopePrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// Validate checks the key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return nil
}

type encryptionMiddleware struct {
	next   ports.RecordStore
	config EncryptionConfig
}

// sealed is the plaintext carried inside the envelope.
type sealed struct {
	Answers domain.Answers `json:"answers"`
	Final   string         `json:"final"`
}

// NewEncryptionMiddleware creates a middleware that seals record contents using AES-GCM.
// Ids, user id and timestamp stay in clear so stores can index by user and time.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if err := config.Validate(); err != nil {
		panic(err.Error())
	}
	return func(next ports.RecordStore) ports.RecordStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, record domain.Record) error {
	plainText, err := json.Marshal(sealed{Answers: record.Answers, Final: record.Final})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}

	envelope := domain.Record{
		ID:        record.ID,
		UserID:    record.UserID,
		SessionID: record.SessionID,
		CreatedAt: record.CreatedAt,
		Final:     envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	envelopes, err := m.next.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(envelopes))
	for _, env := range envelopes {
		rec, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", env.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (m *encryptionMiddleware) open(envelope domain.Record) (domain.Record, error) {
	encoded, ok := strings.CutPrefix(envelope.Final, envelopePrefix)
	if !ok {
		// Fail secure: with encryption configured, plain records are not trusted.
		return domain.Record{}, errors.New("record is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decrypt record: %w", err)
	}

	var body sealed
	if err := json.Unmarshal(plainText, &body); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal decrypted record: %w", err)
	}

	rec := envelope
	rec.Answers = body.Answers
	rec.Final = body.Final
	return rec, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
