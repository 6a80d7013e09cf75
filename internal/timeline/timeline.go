// Package timeline is an append-only, time-indexed record of the input and
// output exchanged with a child process during one session.
package timeline

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// RecordType discriminates input from output records.
type RecordType string

const (
	TypeInput  RecordType = "input"
	TypeOutput RecordType = "output"
)

// Neighbor links a record to the chronologically preceding record in the
// merged history. Input records are named after the output that solicited
// them via this link.
type Neighbor struct {
	Index     int   `yaml:"index"`
	Timestamp int64 `yaml:"timestamp"`
}

// IoRecord is one entry of the merged history.
type IoRecord struct {
	Type             RecordType `yaml:"type"`
	Timestamp        int64      `yaml:"timestamp"`
	Value            string     `yaml:"value"`
	PreviousNeighbor *Neighbor  `yaml:"previousNeighbor,omitempty"`
}

// Skip reports whether the record is an empty acknowledgment: a bare newline
// or tab+return, meaning a default was accepted with no typed content.
func (r IoRecord) Skip() bool {
	return r.Type == TypeInput && (r.Value == "\n" || r.Value == "\t\r")
}

// Store accumulates timestamped input and output events. Input values are
// kept as character-code sequences, output values as cleaned strings. The
// store is owned by a single session and discarded after serialization.
type Store struct {
	mu      sync.Mutex
	now     func() int64
	last    int64
	inputs  map[int64][]rune
	outputs map[int64]string
}

// NewStore creates an empty store stamping records with wall-clock
// milliseconds.
func NewStore() *Store {
	return &Store{
		now:     func() int64 { return time.Now().UnixMilli() },
		inputs:  make(map[int64][]rune),
		outputs: make(map[int64]string),
	}
}

// next returns a timestamp strictly greater than any previously issued one.
// Two events inside the same millisecond are tie-broken monotonically so no
// two records ever share a timestamp.
func (s *Store) next() int64 {
	ts := s.now()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

// RecordInput appends one line of input, stored as character codes without
// its terminator. An empty line is stored as a bare newline acknowledgment.
func (s *Store) RecordInput(line string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line == "" {
		line = "\n"
	}
	ts := s.next()
	s.inputs[ts] = []rune(line)
	return ts
}

// RecordOutput appends one line of child output.
func (s *Store) RecordOutput(line string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.next()
	s.outputs[ts] = strings.TrimRight(line, "\r\n")
	return ts
}

// Len returns the total number of recorded events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs) + len(s.outputs)
}

// MergeHistory returns the chronological merge of all recorded events,
// sorted ascending by timestamp, with each record linked to its predecessor.
func (s *Store) MergeHistory() []IoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]int64, 0, len(s.inputs)+len(s.outputs))
	for ts := range s.inputs {
		keys = append(keys, ts)
	}
	for ts := range s.outputs {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	records := make([]IoRecord, 0, len(keys))
	for i, ts := range keys {
		rec := IoRecord{Timestamp: ts}
		if codes, ok := s.inputs[ts]; ok {
			rec.Type = TypeInput
			rec.Value = string(codes)
		} else {
			rec.Type = TypeOutput
			rec.Value = s.outputs[ts]
		}
		if i > 0 {
			rec.PreviousNeighbor = &Neighbor{Index: i - 1, Timestamp: keys[i-1]}
		}
		records = append(records, rec)
	}
	return records
}
