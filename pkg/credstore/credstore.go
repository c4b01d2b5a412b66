// Package credstore persists provider credentials encrypted at rest.
// The file format is a small binary header (magic, version, Argon2id
// salt, GCM nonce) followed by AES-256-GCM ciphertext over a JSON body.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	magicBytes    = "CVCR"
	formatVersion = 1

	// Argon2id parameters (OWASP recommended).
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32 // AES-256

	saltSize  = 32
	nonceSize = 12 // GCM standard nonce size

	// magic(4) + version(4) + salt(32) + nonce(12)
	headerSize = 4 + 4 + saltSize + nonceSize
)

var (
	ErrInvalidFormat   = errors.New("invalid file format: not an encrypted credentials file")
	ErrInvalidVersion  = errors.New("unsupported credentials format version")
	ErrDecryptFailed   = errors.New("decryption failed: wrong password or corrupted data")
	ErrProviderMissing = errors.New("provider has no stored credentials")
)

// Credentials holds what a provider needs to authorize stream fetches.
type Credentials struct {
	Cookies   string `json:"cookies,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// File is the decrypted credentials file: one entry per provider.
type File struct {
	Providers map[string]Credentials `json:"providers"`
}

// NewFile creates an empty credentials file.
func NewFile() *File {
	return &File{Providers: make(map[string]Credentials)}
}

// Get returns the credentials stored for a provider.
func (f *File) Get(provider string) (Credentials, error) {
	creds, ok := f.Providers[provider]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrProviderMissing, provider)
	}
	return creds, nil
}

// Set stores credentials for a provider.
func (f *File) Set(provider string, creds Credentials) {
	if f.Providers == nil {
		f.Providers = make(map[string]Credentials)
	}
	f.Providers[provider] = creds
}

// Delete removes a provider's credentials.
func (f *File) Delete(provider string) {
	delete(f.Providers, provider)
}

// Save encrypts the file with the password and writes it to path with
// owner-only permissions.
func Save(path, password string, f *File) error {
	plaintext, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	ciphertext, err := encrypt(plaintext, password)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, ciphertext, 0600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

// Load reads and decrypts the credentials file at path. A missing file
// yields an empty store rather than an error, so first runs need no
// setup step.
func Load(path, password string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	plaintext, err := decrypt(data, password)
	if err != nil {
		return nil, err
	}

	f := NewFile()
	if err := json.Unmarshal(plaintext, f); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return f, nil
}

// IsEncryptedFile reports whether a file carries the credentials magic.
func IsEncryptedFile(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fh.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(fh, header); err != nil {
		return false
	}
	return string(header) == magicBytes
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, headerSize+len(ciphertext))
	copy(out[0:4], magicBytes)
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	copy(out[8:8+saltSize], salt)
	copy(out[8+saltSize:headerSize], nonce)
	copy(out[headerSize:], ciphertext)
	return out, nil
}

func decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < headerSize || string(data[0:4]) != magicBytes {
		return nil, ErrInvalidFormat
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != formatVersion {
		return nil, ErrInvalidVersion
	}

	salt := data[8 : 8+saltSize]
	nonce := data[8+saltSize : headerSize]
	ciphertext := data[headerSize:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
