package feed

import (
	"slices"

	"github.com/danmuck/abxfeed/internal/protocol/frame"
)

// Session is the per-run record store plus the highest sequence seen.
// It is not safe for concurrent use.
type Session struct {
	records     map[int32]frame.Record
	maxSequence int32
	duplicates  int
}

func NewSession() *Session {
	return &Session{records: make(map[int32]frame.Record)}
}

// Put stores rec under its sequence, overwriting any earlier record, and reports
// whether one was replaced.
func (s *Session) Put(rec frame.Record) bool {
	_, replaced := s.records[rec.Sequence]
	s.records[rec.Sequence] = rec
	if replaced {
		s.duplicates++
	}
	if rec.Sequence > s.maxSequence {
		s.maxSequence = rec.Sequence
	}
	return replaced
}

func (s *Session) Get(seq int32) (frame.Record, bool) {
	rec, ok := s.records[seq]
	return rec, ok
}

func (s *Session) Len() int {
	return len(s.records)
}

func (s *Session) MaxSequence() int32 {
	return s.maxSequence
}

func (s *Session) Duplicates() int {
	return s.duplicates
}

// Missing lists every sequence in [1, MaxSequence] without a record, ascending.
func (s *Session) Missing() []int32 {
	out := []int32{}
	for seq := int32(1); seq > 0 && seq <= s.maxSequence; seq++ {
		if _, ok := s.records[seq]; !ok {
			out = append(out, seq)
		}
	}
	return out
}

// Snapshot returns all stored records ordered by sequence.
func (s *Session) Snapshot() []frame.Record {
	out := make([]frame.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b frame.Record) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		default:
			return 0
		}
	})
	return out
}
