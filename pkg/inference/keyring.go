package inference

import (
	"log/slog"
	"sync"
)

// Credential is one upstream API key. Credentials are immutable once loaded;
// identity is their position in the ordered list.
type Credential struct {
	// Name is a human-readable label for logs and health reporting.
	Name string

	// Secret is the API key itself.
	Secret string
}

// Keyring holds an ordered set of interchangeable credentials for the same
// upstream service and tracks which one is active. It is shared across all
// concurrent requests; rotations from concurrent requests may interleave, and
// that is fine — the active index is always a valid position.
type Keyring struct {
	mu        sync.Mutex
	creds     []Credential
	active    int
	rotations uint64
	logger    *slog.Logger
}

// NewKeyring creates a keyring from an ordered credential list.
// The list must be non-empty.
func NewKeyring(creds []Credential, opts ...Option) (*Keyring, error) {
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)

	owned := make([]Credential, len(creds))
	copy(owned, creds)

	return &Keyring{
		creds:  owned,
		logger: cfg.Logger.With("component", "inference.keyring"),
	}, nil
}

// Current returns the active credential. No side effects.
func (k *Keyring) Current() Credential {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.creds[k.active]
}

// CurrentName returns the name of the active credential.
func (k *Keyring) CurrentName() string {
	return k.Current().Name
}

// Rotate advances to the next credential, wrapping around at the end, and
// returns the new active credential. After Size() rotations the keyring is
// back at its starting credential.
func (k *Keyring) Rotate() Credential {
	k.mu.Lock()
	k.active = (k.active + 1) % len(k.creds)
	k.rotations++
	cred := k.creds[k.active]
	rotations := k.rotations
	k.mu.Unlock()

	k.logger.Info("rotated credential",
		"active", cred.Name,
		"rotations", rotations,
	)
	return cred
}

// Size returns the number of credentials in the ring.
func (k *Keyring) Size() int {
	return len(k.creds)
}

// Rotations returns how many rotations have happened since startup.
func (k *Keyring) Rotations() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.rotations
}
