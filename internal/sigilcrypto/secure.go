// Package sigilcrypto provides the vault session cryptography: password key
// derivation, authenticated encryption of account secrets, age-encrypted vault
// blobs, and mlocked buffers for secrets held in memory.
package sigilcrypto

import (
	"runtime"
	"sync"
)

// SecureBytes holds one secret in memory the OS is asked not to swap out.
// Destroy zeroes it; a buffer that is dropped without Destroy is zeroed when
// the garbage collector reclaims it.
type SecureBytes struct {
	mu      sync.Mutex
	buf     []byte
	pinned  bool
	cleanup runtime.Cleanup
}

// pinnedBuf is what the GC cleanup sees; it must not reference SecureBytes.
type pinnedBuf struct {
	buf    []byte
	pinned bool
}

func wipe(p pinnedBuf) {
	Zero(p.buf)
	if p.pinned {
		_ = unlockMemory(p.buf)
	}
}

// NewSecureBytes allocates a zeroed buffer of size bytes. Locking the pages
// is best effort; IsLocked reports whether it worked.
func NewSecureBytes(size int) (*SecureBytes, error) {
	s := &SecureBytes{buf: make([]byte, size)}
	s.pinned = size > 0 && lockMemory(s.buf) == nil
	s.cleanup = runtime.AddCleanup(s, wipe, pinnedBuf{buf: s.buf, pinned: s.pinned})
	return s, nil
}

// SecureBytesFromSlice copies src into a new buffer. The caller still owns
// src and should zero it.
func SecureBytesFromSlice(src []byte) (*SecureBytes, error) {
	s, err := NewSecureBytes(len(src))
	if err != nil {
		return nil, err
	}
	copy(s.buf, src)
	return s, nil
}

// Bytes returns the live buffer, or nil after Destroy. Callers must not keep
// it beyond the owner's lifetime.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}

// Len returns the secret length, 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// IsLocked reports whether the pages are mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned
}

// Destroy zeroes and unlocks the buffer. Calling it again is a no-op.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return
	}
	s.cleanup.Stop()
	wipe(pinnedBuf{buf: s.buf, pinned: s.pinned})
	s.buf = nil
	s.pinned = false
}
