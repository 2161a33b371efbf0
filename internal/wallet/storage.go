package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
	bolt "go.etcd.io/bbolt"

	"github.com/mrz1836/sigil-keyring/internal/fileutil"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

const (
	// recordFileExtension is the extension for file-backed records.
	recordFileExtension = ".json"

	// recordFilePermissions is the permission mode for record files.
	recordFilePermissions = 0o600

	// recordDirPermissions is the permission mode for the storage directory.
	recordDirPermissions = 0o750

	// boltBucket holds every record in a bolt database.
	boltBucket = "sigil-keyring"
)

var (
	// ErrRecordNotFound is returned by Get for an absent key.
	ErrRecordNotFound = sigilerr.WithDetails(sigilerr.ErrNotFound, map[string]string{"resource": "record"})

	// ErrInvalidRecordKey indicates a key outside [a-zA-Z0-9_.-]{1,64}.
	ErrInvalidRecordKey = sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "record keys must be 1-64 alphanumeric characters, dots, underscores, or hyphens")

	// recordKeyRegex validates record keys so they are safe as file names.
	recordKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
)

// Storage persists opaque records. Setting a nil value removes the record.
type Storage interface {
	// Get returns the record stored under key or ErrRecordNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous record.
	Set(ctx context.Context, key string, value []byte) error
}

// ValidateRecordKey checks that key is usable by every backend.
func ValidateRecordKey(key string) error {
	if !recordKeyRegex.MatchString(key) || key == "." || key == ".." {
		return ErrInvalidRecordKey
	}
	return nil
}

// MemoryStorage keeps records in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string][]byte)}
}

// Get returns a copy of the record.
func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateRecordKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.records, key)
		return nil
	}
	s.records[key] = append([]byte(nil), value...)
	return nil
}

// FileStorage keeps one file per record in a directory.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates a file-backed store rooted at basePath.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{basePath: basePath}
}

// Get reads the record file.
func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.recordPath(key)
	if err != nil {
		return nil, err
	}
	data, found, err := fileutil.ReadOptional(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRecordNotFound
	}
	return data, nil
}

// Set atomically replaces the record file, or removes it for a nil value.
func (s *FileStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}
	if value == nil {
		return fileutil.RemoveIfExists(path)
	}
	return fileutil.WriteAtomic(path, value, recordFilePermissions)
}

// recordPath returns the file for key. The key has been validated to match
// [a-zA-Z0-9_.-]{1,64}, which prevents path traversal.
func (s *FileStorage) recordPath(key string) (string, error) {
	if err := ValidateRecordKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, key+recordFileExtension), nil
}

// BoltStorage keeps records in a single bbolt database file.
type BoltStorage struct {
	db *bolt.DB
}

// OpenBoltStorage opens or creates the database at path.
func OpenBoltStorage(path string) (*BoltStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), recordDirPermissions); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	db, err := bolt.Open(path, recordFilePermissions, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt storage: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bolt bucket: %w", err)
	}
	return &BoltStorage{db: db}, nil
}

// Get reads a record inside a read transaction.
func (s *BoltStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v == nil {
			return ErrRecordNotFound
		}
		// v is only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Set writes or deletes a record inside a write transaction.
func (s *BoltStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateRecordKey(key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if value == nil {
			return b.Delete([]byte(key))
		}
		return b.Put([]byte(key), value)
	})
}

// Close releases the database file lock.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// KeychainStorage keeps records in the OS keychain, base64-encoded, one
// keychain item per record under a common service name.
type KeychainStorage struct {
	service string
}

// NewKeychainStorage creates a keychain-backed store.
func NewKeychainStorage(service string) *KeychainStorage {
	return &KeychainStorage{service: service}
}

// Get reads and decodes a keychain item.
func (s *KeychainStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	encoded, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading keychain: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding keychain item: %w", err)
	}
	return data, nil
}

// Set writes, or deletes for a nil value, a keychain item.
func (s *KeychainStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateRecordKey(key); err != nil {
		return err
	}
	if value == nil {
		if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("deleting keychain item: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.service, key, base64.StdEncoding.EncodeToString(value)); err != nil {
		return fmt.Errorf("writing keychain: %w", err)
	}
	return nil
}

// ProbeKeychain reports whether the OS keychain accepts a write, read, and
// delete round trip.
func ProbeKeychain(service string) bool {
	const (
		probeUser  = "probe"
		probeValue = "ok"
	)
	if err := keyring.Set(service, probeUser, probeValue); err != nil {
		return false
	}
	v, err := keyring.Get(service, probeUser)
	_ = keyring.Delete(service, probeUser)
	return err == nil && v == probeValue
}
