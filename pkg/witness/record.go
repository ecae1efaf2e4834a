// Package witness implements the batch output: an ordered JSON log of
// transaction records (spec §6.1) and the fixed-size "global dex state"
// header consumed by the on-chain proof generator (spec §6.2).
package witness

import (
	"encoding/json"
	"math/big"

	"github.com/google/uuid"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// Record is one witness log entry. Every mutating executor appends
// exactly one on success (spec §6.1). Fields is a flat map of
// already-stringified values — hex for field elements, decimal for plain
// integers — matching the source's flat schema.
type Record struct {
	TransactionType string
	Fields          map[string]string
}

// NewRecord starts a record of the given transaction type.
func NewRecord(transactionType string) *Record {
	return &Record{TransactionType: transactionType, Fields: make(map[string]string)}
}

// Set stores a plain string field.
func (r *Record) Set(key, value string) *Record {
	r.Fields[key] = value
	return r
}

// SetHash stores a field-element hash as a 0x-prefixed hex string.
func (r *Record) SetHash(key string, h crypto.Hash) *Record {
	r.Fields[key] = "0x" + hexEncode(h[:])
	return r
}

// SetUint stores a plain integer as a decimal string.
func (r *Record) SetUint(key string, v uint64) *Record {
	r.Fields[key] = big.NewInt(0).SetUint64(v).String()
	return r
}

// SetIndices stores a list of tree indices as a JSON array under key.
func (r *Record) SetIndices(key string, idxs []uint64) *Record {
	b, _ := json.Marshal(idxs)
	r.Fields[key] = string(b)
	return r
}

// MarshalJSON flattens transaction_type alongside every field into one
// JSON object, matching spec §6.1's "flat schema" description.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["transaction_type"] = r.TransactionType
	return json.Marshal(out)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// Log is the append-only sequence of records produced within one batch
// (spec §6.1 "swap_output_json"). ID is a random identifier stamped at
// creation and written to the coordinator's "batch_finalized" log line. It
// is not part of the JSON encoding; storage keys the flushed log by batch
// height.
type Log struct {
	ID      string
	Records []*Record
}

func NewLog() *Log { return &Log{ID: uuid.NewString()} }

func (l *Log) Append(r *Record) { l.Records = append(l.Records, r) }

func (l *Log) Len() int { return len(l.Records) }

// MarshalJSON encodes the log as a JSON array, the unit flushed to
// storage at batch finalization.
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Records)
}
