// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleCounters struct {
	Runs       int64     `cbor:"runs"`
	Tokens     int64     `cbor:"tokens,omitempty"`
	LastRunAt  time.Time `cbor:"last_run_at"`
	LastStatus string    `cbor:"last_status,omitempty"`
}

func TestMarshalUnmarshalPreservesCounters(t *testing.T) {
	t.Parallel()

	original := sampleCounters{
		Runs:       3,
		Tokens:     1500,
		LastRunAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastStatus: "success",
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleCounters
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.LastRunAt.Equal(original.LastRunAt) || decoded.Runs != original.Runs ||
		decoded.Tokens != original.Tokens || decoded.LastStatus != original.LastStatus {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("map encoding not deterministic: %x vs %x", first, again)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"runs": 7, "future_field": "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleCounters
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Runs != 7 {
		t.Errorf("Runs = %d, want 7", decoded.Runs)
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]int{"runs": 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"runs": 2`) {
		t.Errorf("Diagnose = %q, want it to contain %q", diagnostic, `"runs": 2`)
	}
}
