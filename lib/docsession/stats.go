// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/quill/lib/codec"
	"github.com/bureau-foundation/quill/lib/streamjson"
)

// Stats are cumulative counters for one document's session.
type Stats struct {
	DocumentID       string    `cbor:"document_id" json:"document_id"`
	Runs             int64     `cbor:"runs" json:"runs"`
	InputTokens      int64     `cbor:"input_tokens" json:"input_tokens"`
	OutputTokens     int64     `cbor:"output_tokens" json:"output_tokens"`
	CacheReadTokens  int64     `cbor:"cache_read_tokens,omitempty" json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64     `cbor:"cache_write_tokens,omitempty" json:"cache_write_tokens,omitempty"`
	CostUSD          float64   `cbor:"cost_usd,omitempty" json:"cost_usd,omitempty"`
	FirstRunAt       time.Time `cbor:"first_run_at" json:"first_run_at"`
	LastRunAt        time.Time `cbor:"last_run_at" json:"last_run_at"`
}

// TotalTokens is InputTokens + OutputTokens.
func (s Stats) TotalTokens() int64 { return s.InputTokens + s.OutputTokens }

// LoadStats reads the stats file in directory. A missing file yields
// zero stats.
func LoadStats(directory string) (Stats, error) {
	path := filepath.Join(directory, StatsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, &PersistenceError{Operation: "reading stats", Path: path, Err: err}
	}
	var stats Stats
	if err := codec.Unmarshal(data, &stats); err != nil {
		return Stats{}, &PersistenceError{Operation: "parsing stats", Path: path, Err: err}
	}
	return stats, nil
}

// RecordRun adds one successful run to the stats in directory. A
// corrupt stats file restarts the counters.
func (s *Store) RecordRun(directory, documentID string, usage *streamjson.TokenUsage, costUSD float64) (Stats, error) {
	stats, err := LoadStats(directory)
	if err != nil {
		s.logger().Warn("discarding unreadable stats", "session_dir", directory, "error", err)
		stats = Stats{}
	}

	now := s.clock().Now().UTC()
	if stats.Runs == 0 {
		stats.FirstRunAt = now
	}
	stats.DocumentID = documentID
	stats.Runs++
	stats.LastRunAt = now
	stats.CostUSD += costUSD
	if usage != nil {
		stats.InputTokens += usage.InputTokens
		stats.OutputTokens += usage.OutputTokens
		stats.CacheReadTokens += usage.CacheReadTokens
		stats.CacheWriteTokens += usage.CacheWriteTokens
	}

	path := filepath.Join(directory, StatsFile)
	data, err := codec.Marshal(stats)
	if err != nil {
		return stats, &PersistenceError{Operation: "encoding stats", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return stats, &PersistenceError{Operation: "saving stats", Path: path, Err: err}
	}
	return stats, nil
}
