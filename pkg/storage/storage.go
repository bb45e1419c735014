// Package storage persists small JSON documents across kdeploy sessions.
package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/peterbourgon/diskv/v3"

	"github.com/sidkik/kdeploy/pkg/errors"
)

// Store is a key-value store of JSON documents.
type Store interface {
	// Get decodes the value stored at key into `into`. It returns false if
	// the key has never been set.
	Get(key string, into interface{}) (bool, error)

	// Set replaces the value stored at key.
	Set(key string, value interface{}) error
}

type diskStore struct {
	d *diskv.Diskv
}

// NewDiskStore returns a Store that keeps one file per key in `dir`.
func NewDiskStore(dir string) Store {
	return diskStore{
		d: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 1024 * 1024,
			FilePerm:     0600,
			PathPerm:     0700,
		}),
	}
}

func (s diskStore) Get(key string, into interface{}) (bool, error) {
	raw, err := s.d.Read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithContext(err, "read")
	}

	if err := json.Unmarshal(raw, into); err != nil {
		return false, errors.WithContext(err, "unmarshal")
	}
	return true, nil
}

func (s diskStore) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := s.d.Write(key, raw); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// MemoryStore is an in-process Store. Values are round-tripped through JSON
// so that callers observe the same semantics as the disk store.
type MemoryStore struct {
	lock   sync.Mutex
	values map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string][]byte{}}
}

func (s *MemoryStore) Get(key string, into interface{}) (bool, error) {
	s.lock.Lock()
	raw, ok := s.values[key]
	s.lock.Unlock()
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, into); err != nil {
		return false, errors.WithContext(err, "unmarshal")
	}
	return true, nil
}

func (s *MemoryStore) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[key] = raw
	return nil
}
