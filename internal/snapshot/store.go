// Package snapshot holds the latest record per symbol. A Store is not safe
// for concurrent use; the processor goroutine owns it.
package snapshot

import "marketview/models"

type Store struct {
	records map[string]models.MarketRecord
	version uint64
}

func New() *Store {
	return &Store{records: make(map[string]models.MarketRecord)}
}

// Upsert replaces any record with the same symbol. Fields are never merged.
func (s *Store) Upsert(rec models.MarketRecord) {
	s.records[rec.Symbol] = rec
	s.version++
}

// UpsertAll upserts recs in order and reports how many were applied.
func (s *Store) UpsertAll(recs []models.MarketRecord) int {
	for _, rec := range recs {
		s.Upsert(rec)
	}
	return len(recs)
}

func (s *Store) Get(symbol string) (models.MarketRecord, bool) {
	rec, ok := s.records[symbol]
	return rec, ok
}

func (s *Store) Len() int {
	return len(s.records)
}

// Version increases on every upsert.
func (s *Store) Version() uint64 {
	return s.version
}

// Records returns a copy of the stored records in unspecified order.
func (s *Store) Records() []models.MarketRecord {
	out := make([]models.MarketRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
