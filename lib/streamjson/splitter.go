// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"bytes"
	"errors"
	"io"
	"iter"
)

// LineSplitter reassembles byte chunks into newline-terminated lines.
// The zero value is ready to use. It is not safe for concurrent use.
type LineSplitter struct {
	partial []byte
}

// Push appends chunk and returns every line it completed, in order,
// without terminators. A trailing "\r" is stripped. Blank lines are
// skipped.
func (s *LineSplitter) Push(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		newline := bytes.IndexByte(chunk, '\n')
		if newline < 0 {
			s.partial = append(s.partial, chunk...)
			break
		}

		var line []byte
		if len(s.partial) > 0 {
			s.partial = append(s.partial, chunk[:newline]...)
			line = s.partial
		} else {
			line = chunk[:newline]
		}
		chunk = chunk[newline+1:]

		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, string(line))
		}
		s.partial = s.partial[:0]
	}
	return lines
}

// Buffered returns the number of bytes held in the partial line.
func (s *LineSplitter) Buffered() int { return len(s.partial) }

// Close discards any partial line and returns how many bytes it held.
// A non-zero result means the stream ended mid-record.
func (s *LineSplitter) Close() int {
	discarded := len(s.partial)
	s.partial = nil
	return discarded
}

// readChunkSize is the read buffer size. Lines longer than this are
// assembled across reads.
const readChunkSize = 64 * 1024

// Decoder reads lines from an io.Reader and decodes them.
type Decoder struct {
	reader    io.Reader
	splitter  LineSplitter
	buffer    []byte
	pending   []string
	err       error
	truncated int
}

// NewDecoder returns a Decoder reading from reader.
func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{reader: reader}
}

// NextLine returns the next complete, non-blank line. At the end of
// the stream it returns io.EOF; a read error is returned as-is. Either
// way the partial tail, if any, is discarded and counted by Truncated.
func (d *Decoder) NextLine() (string, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return "", d.err
		}
		if d.buffer == nil {
			d.buffer = make([]byte, readChunkSize)
		}
		n, err := d.reader.Read(d.buffer)
		if n > 0 {
			d.pending = d.splitter.Push(d.buffer[:n])
		}
		if err != nil {
			d.truncated = d.splitter.Close()
			d.err = err
		}
	}
	line := d.pending[0]
	d.pending = d.pending[1:]
	return line, nil
}

// Next decodes the next line. Malformed lines are returned as
// KindUnrecognized events, not errors; the only errors are io.EOF and
// read failures.
func (d *Decoder) Next() (Event, error) {
	line, err := d.NextLine()
	if err != nil {
		return Event{}, err
	}
	return Decode([]byte(line)), nil
}

// Lines yields every remaining line. After the loop ends, Err reports
// a read failure, if any.
func (d *Decoder) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, err := d.NextLine()
			if err != nil {
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the read error that ended the stream, or nil if it ended
// with io.EOF or has not ended.
func (d *Decoder) Err() error {
	if errors.Is(d.err, io.EOF) {
		return nil
	}
	return d.err
}

// Truncated returns the length of the partial line discarded when the
// stream ended.
func (d *Decoder) Truncated() int { return d.truncated }
