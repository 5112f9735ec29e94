// Package tempbuf implements spec.md §4.4's temp-file buffer: a
// write-through byte sink that starts out backed by a local temporary
// file and can be atomically switched to write directly into a final
// destination, carrying forward whatever was already buffered.
//
// This is the mechanism that lets chromosome N begin producing section
// bytes while chromosome N-1 is still being drained into the output
// file, without ever interleaving the two chromosomes' bytes.
package tempbuf

import (
	"io"
	"os"
	"sync"

	"github.com/genomekit/bigwig/internal/bwerr"
)

// Buffer is a sink with two lifecycle phases: Writing(tempfile) and,
// after Switch, Writing(dest). Write is safe to call concurrently with
// Switch; a Write that arrives mid-switch blocks until the switch
// completes and is then routed to whichever sink Switch left active.
type Buffer struct {
	mu       sync.Mutex
	tmp      *os.File
	dest     io.Writer
	attached bool
	closed   bool
	written  int64 // total bytes ever accepted, across both phases
}

// New creates a Buffer backed by a fresh OS temp file.
func New() (*Buffer, error) {
	f, err := os.CreateTemp("", "bigwig-section-*.tmp")
	if err != nil {
		return nil, bwerr.Wrap(bwerr.IoError, err, "tempbuf: create temp file")
	}
	return &Buffer{tmp: f}, nil
}

// Write appends p to whichever sink is currently active.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, bwerr.Internalf("tempbuf: write after Close")
	}
	var n int
	var err error
	if b.attached {
		n, err = b.dest.Write(p)
	} else {
		n, err = b.tmp.Write(p)
	}
	b.written += int64(n)
	if err != nil {
		return n, bwerr.Wrap(bwerr.IoError, err, "tempbuf: write")
	}
	return n, nil
}

// Written returns the total number of bytes accepted so far, across
// both the buffered and attached phases. A section's local offset
// within this Buffer's byte stream is Written() captured immediately
// before the section's bytes are written.
func (b *Buffer) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Switch is the atomic transition from buffered to attached: it flushes
// whatever is already in the temp file into dest (in order), then
// rebinds so that all subsequent Writes go straight to dest. Writes
// attempted concurrently block for the duration of the copy -- Switch
// holds the same lock Write does.
//
// Switch returns the number of bytes copied from the temp file, which,
// relative to dest's position when Switch was called, is the offset at
// which the next Write into this Buffer lands.
func (b *Buffer) Switch(dest io.Writer) (copied int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return 0, bwerr.Internalf("tempbuf: Switch called twice")
	}
	if _, err := b.tmp.Seek(0, io.SeekStart); err != nil {
		return 0, bwerr.Wrap(bwerr.IoError, err, "tempbuf: seek temp file for switch")
	}
	copied, err = io.Copy(dest, b.tmp)
	if err != nil {
		return copied, bwerr.Wrap(bwerr.IoError, err, "tempbuf: copy buffered prefix to destination")
	}
	b.dest = dest
	b.attached = true
	name := b.tmp.Name()
	b.tmp.Close()
	os.Remove(name)
	return copied, nil
}

// Close releases the backing temp file, if one is still open. Safe to
// call after Switch (a no-op then) or without ever switching.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if !b.attached {
		name := b.tmp.Name()
		b.tmp.Close()
		os.Remove(name)
	}
	return nil
}
