/*
Package store provides the persistent key-value store used by the
primary for certificates and by workers for batches. The
consensus core itself keeps its DAG purely in memory and never touches
the store.
*/
package store

import "github.com/cockroachdb/pebble"

// Store is a thin wrapper around a Pebble database.
type Store struct {
	db *pebble.DB
}

// New opens (or creates) a store at the given path.
func New(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Write stores a key-value pair.
func (s *Store) Write(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Read retrieves the value for the given key, or nil if it is absent.
func (s *Store) Read(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The slice is only valid until closer.Close().
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Remove deletes a key from the store.
func (s *Store) Remove(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
