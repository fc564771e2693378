package cachestore

import (
	"encoding/hex"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	qs "github.com/unkn0wn-root/querysync"
)

// entryRecord is one dehydrated entry. Keys travel as canonical CBOR so
// hydration rebuilds identical hashes; values go through the store's codec.
type entryRecord struct {
	Key       []byte `msgpack:"k"`
	Value     []byte `msgpack:"v"`
	UpdatedAt int64  `msgpack:"u"` // epoch ms
	Retention int64  `msgpack:"r"` // ns; keeps Forever exact
	Stale     bool   `msgpack:"s"`
}

// Dehydrate serializes the live entries into a payload for the persister.
// Entries whose value the codec cannot encode are skipped with a warning;
// one odd value must not block persisting the rest.
func (s *Store) Dehydrate() ([]byte, error) {
	s.mu.RLock()
	snapshot := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()

	records := make([]entryRecord, 0, len(snapshot))
	for _, e := range snapshot {
		kb, err := e.key.Canonical()
		if err != nil {
			s.log.Warn("entry skipped in dehydrate (unencodable key)", qs.Fields{"key": e.key.String(), "err": err})
			continue
		}
		vb, err := s.codec.Encode(e.value)
		if err != nil {
			s.log.Warn("entry skipped in dehydrate (unencodable value)", qs.Fields{"key": e.key.String(), "err": err})
			continue
		}
		records = append(records, entryRecord{
			Key:       kb,
			Value:     vb,
			UpdatedAt: e.updatedAt.UnixMilli(),
			Retention: int64(e.retention),
			Stale:     e.stale,
		})
	}
	b, err := msgpack.Marshal(records)
	if err != nil {
		return nil, &qs.SerializationError{Op: "dehydrate", Err: err}
	}
	return b, nil
}

// Hydrate restores entries from a Dehydrate payload. Restored values are
// generic decoded shapes until a typed fetch re-maps them. Live entries win
// over restored ones: anything written since startup is newer than the
// snapshot. Individually corrupt records are skipped; a payload that does
// not parse at all is an error.
func (s *Store) Hydrate(payload []byte) error {
	var records []entryRecord
	if err := msgpack.Unmarshal(payload, &records); err != nil {
		return &qs.SerializationError{Op: "hydrate", Err: err}
	}
	now := s.now()
	restored := 0
	s.mu.Lock()
	for _, r := range records {
		key, err := qs.DecodeKey(r.Key)
		if err != nil {
			s.log.Warn("record skipped in hydrate (bad key)", qs.Fields{"err": err})
			continue
		}
		value, err := s.codec.Decode(r.Value)
		if err != nil {
			s.log.Warn("record skipped in hydrate (bad value)", qs.Fields{"key": key.String(), "err": err})
			continue
		}
		hash := hex.EncodeToString(r.Key)
		if _, live := s.entries[hash]; live {
			continue
		}
		s.entries[hash] = &entry{
			key:        key,
			value:      value,
			updatedAt:  time.UnixMilli(r.UpdatedAt),
			lastAccess: now,
			retention:  time.Duration(r.Retention),
			stale:      r.Stale,
			hydrated:   true,
		}
		restored++
	}
	s.mu.Unlock()
	s.log.Info("hydrated entries", qs.Fields{"restored": restored, "records": len(records)})
	return nil
}
