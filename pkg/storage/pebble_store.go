// Package storage persists the execution core's witness log and snapshot
// state to a local pebble database, keyed by batch height.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/hyperlicked/invisible-core/pkg/witness"
)

type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// keys: w:<8-byte-batch-height> witness log for a batch
//       s:<name> snapshot blob (the coordinator writes dex_state:<height>)
//       h:committed the last committed batch height

func kWitness(height uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "w:")
	binary.BigEndian.PutUint64(key[2:], height)
	return key
}

func kSnapshot(name string) []byte { return append([]byte("s:"), name...) }
func kCommittedHeight() []byte     { return []byte("h:committed") }

// SaveBatchLog persists one batch's witness log, indexed by batch height.
func (s *Store) SaveBatchLog(height uint64, log *witness.Log) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal witness log: %w", err)
	}
	if err := s.db.Set(kWitness(height), data, pebble.Sync); err != nil {
		return fmt.Errorf("save witness log: %w", err)
	}
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, height)
	return s.db.Set(kCommittedHeight(), heightBytes, pebble.Sync)
}

// LoadBatchLog reads back a previously committed batch's witness log.
func (s *Store) LoadBatchLog(height uint64) (*witness.Log, bool, error) {
	val, closer, err := s.db.Get(kWitness(height))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load witness log: %w", err)
	}
	defer closer.Close()
	var flat []map[string]string
	if err := json.Unmarshal(val, &flat); err != nil {
		return nil, false, fmt.Errorf("unmarshal witness log: %w", err)
	}
	log := &witness.Log{}
	for _, fields := range flat {
		rec := witness.NewRecord(fields["transaction_type"])
		for k, v := range fields {
			if k != "transaction_type" {
				rec.Set(k, v)
			}
		}
		log.Append(rec)
	}
	return log, true, nil
}

// CommittedHeight returns the height of the last batch saved, if any.
func (s *Store) CommittedHeight() (uint64, bool, error) {
	val, closer, err := s.db.Get(kCommittedHeight())
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load committed height: %w", err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), true, nil
}

// SaveSnapshot writes an arbitrary JSON-serializable blob under name. The
// coordinator uses it for each batch's global dex state header; funding and
// index-price state are not snapshotted.
func (s *Store) SaveSnapshot(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}
	if err := s.db.Set(kSnapshot(name), data, pebble.Sync); err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

// LoadSnapshot reads back a snapshot saved with SaveSnapshot. Returns false
// if no snapshot exists under that name yet.
func (s *Store) LoadSnapshot(name string, v any) (bool, error) {
	val, closer, err := s.db.Get(kSnapshot(name))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("unmarshal snapshot %s: %w", name, err)
	}
	return true, nil
}
