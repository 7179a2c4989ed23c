package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Reveal once the buffer has been destroyed.
var ErrDestroyed = errors.New("secure buffer destroyed")

// SecureBuffer holds one secret sealed in a memguard enclave.
type SecureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// NewSecureBuffer seals data. memguard wipes data while sealing it, so the
// caller's slice must not be reused afterwards.
func NewSecureBuffer(data []byte) *SecureBuffer {
	if len(data) == 0 {
		// memguard refuses to seal zero-length input.
		return &SecureBuffer{empty: true}
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}
}

// FromString seals a copy of s.
func FromString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// Reveal decrypts the secret into locked memory, hands it to fn and wipes it
// again when fn returns. fn must not retain the slice.
func (s *SecureBuffer) Reveal(fn func(secret []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if s.empty {
		return fn([]byte{})
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// String reveals the secret as an ordinary Go string. Only use it where an
// API insists on a string, such as the SDK's PutSecretValue input.
func (s *SecureBuffer) String() (string, error) {
	var out string
	err := s.Reveal(func(secret []byte) error {
		out = string(secret)
		return nil
	})
	return out, err
}

// Destroy drops the enclave. It is safe to call more than once.
func (s *SecureBuffer) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
