/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package snapshot persists a session's last-known output values so
// that UI can be reconstructed from a saved session snapshot without
// waiting for fresh pushes.
package snapshot

import (
	"context"
	"encoding/json"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store is a bbolt-backed value store with one bucket per worker id.
//
// A nil *Store is a valid no-op store, so callers don't need to guard
// every call on whether snapshotting is configured.
type Store struct {
	Debug bool

	filename string
	db       *bolt.DB
}

// NewStore makes a Store that will use the given file.
func NewStore(filename string) (*Store, error) {
	return &Store{
		filename: filename,
	}, nil
}

// Open opens the underlying database.
func (s *Store) Open(ctx context.Context) error {
	if s == nil {
		return nil
	}
	opts := &bolt.Options{
		Timeout: time.Second,
	}
	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) logf(format string, args ...interface{}) {
	if s == nil {
		return
	}
	if s.Debug {
		log.Printf("snapshot "+format, args...)
	}
}

// SaveValues writes the given values under the worker's bucket.  A
// nil value deletes the entry.
func (s *Store) SaveValues(ctx context.Context, workerId string, values map[string]interface{}) error {
	if s == nil {
		return nil
	}
	if 0 == len(values) {
		return nil
	}

	vals := make(map[string][]byte, len(values))
	for name, v := range values {
		if v == nil {
			vals[name] = nil
			continue
		}
		js, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		vals[name] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(workerId))
		if err != nil {
			return err
		}
		for name, bs := range vals {
			var (
				key = []byte(name)
				err error
			)
			if bs == nil {
				err = b.Delete(key)
			} else {
				err = b.Put(key, bs)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore reads back everything saved for the worker.  Returns nil
// (not an error) when nothing was saved.
func (s *Store) Restore(ctx context.Context, workerId string) (map[string]interface{}, error) {
	if s == nil {
		return nil, nil
	}

	values := make(map[string]interface{}, 8)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(workerId))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for name, bs := c.First(); name != nil; name, bs = c.Next() {
			var v interface{}
			if err := json.Unmarshal(bs, &v); err != nil {
				return err
			}
			values[string(name)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("Restore %s found %d values", workerId, len(values))

	if len(values) == 0 {
		return nil, nil
	}

	return values, nil
}

// Forget drops everything saved for the worker.
func (s *Store) Forget(ctx context.Context, workerId string) error {
	if s == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(workerId)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(workerId))
	})
}
