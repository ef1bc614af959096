// Package state is the durable token store. Tokens live in a bbolt
// database and are scoped to the API origin they were issued by, so
// pointing the client at a different server never leaks credentials.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.bizdesk/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

// Slot names. Both are written together on a successful exchange and
// cleared together on logout or refresh failure.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

func originBucket(origin string) []byte {
	return []byte("origin:" + origin)
}

// State wraps a bbolt database holding the token slots for one origin.
type State struct {
	db     *bolt.DB
	bucket []byte
	origin string
	sealer *sealer
}

// Option configures a State at open time.
type Option func(*State) error

// WithKey seals every stored value with the given 32-byte key.
func WithKey(key []byte) Option {
	return func(s *State) error {
		if key == nil {
			return nil
		}

		sl, err := newSealer(key)
		if err != nil {
			return err
		}

		s.sealer = sl

		return nil
	}
}

// LoadAt opens the token database at path for the given origin, creating
// the file and the origin bucket if they do not exist.
func LoadAt(path, origin string, opts ...Option) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &State{
		bucket: originBucket(origin),
		origin: origin,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("configuring state: %w", err)
		}
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	s.db = db

	return s, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Origin returns the origin this store is scoped to.
func (s *State) Origin() string {
	return s.origin
}

// Get returns the value stored under name. Missing, empty, or unreadable
// values report ok=false; callers treat all three as "no token".
func (s *State) Get(name string) (string, bool) {
	var value string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(name))
		if v == nil {
			return nil
		}

		plain, err := s.open(name, v)
		if err != nil {
			return nil
		}

		value = string(plain)

		return nil
	})

	return value, value != ""
}

// Set persists value under name.
func (s *State) Set(name, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.put(tx, name, value)
	})
}

// Clear removes name. Clearing an absent slot is not an error.
func (s *State) Clear(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(name))
	})
}

// SetTokens writes both token slots in one transaction.
func (s *State) SetTokens(access, refresh string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := s.put(tx, AccessTokenKey, access); err != nil {
			return err
		}

		return s.put(tx, RefreshTokenKey, refresh)
	})
}

// ClearTokens removes both token slots in one transaction.
func (s *State) ClearTokens() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if err := b.Delete([]byte(AccessTokenKey)); err != nil {
			return err
		}

		return b.Delete([]byte(RefreshTokenKey))
	})
}

func (s *State) put(tx *bolt.Tx, name, value string) error {
	data, err := s.seal(name, []byte(value))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", name, err)
	}

	return tx.Bucket(s.bucket).Put([]byte(name), data)
}

func (s *State) seal(name string, plain []byte) ([]byte, error) {
	if s.sealer == nil {
		return plain, nil
	}

	return s.sealer.seal(s.aad(name), plain)
}

func (s *State) open(name string, data []byte) ([]byte, error) {
	if s.sealer == nil {
		return data, nil
	}

	return s.sealer.open(s.aad(name), data)
}

// aad binds a sealed value to its origin and slot so values cannot be
// swapped between slots or origins.
func (s *State) aad(name string) []byte {
	return append(append([]byte{}, s.bucket...), []byte("/"+name)...)
}
