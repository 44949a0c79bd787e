// Package state implements the durable per-segment completion bitmap: a
// small binary file with a magic number, version, segment count, and a
// CRC-32 guarding the bitfield payload. Persistence goes through
// internal/atomicfile so a crash mid-write never produces a torn file —
// the same write-temp-then-rename discipline the teacher uses for its
// settings file (internal/config/settings.go) and resume state
// (internal/downloader/state.go), generalized from a JSON blob to a fixed
// binary layout because this module's resume unit is a single bit per
// segment rather than a list of byte ranges.
package state

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tsegment/hlsdl/internal/atomicfile"
)

// Magic identifies a bitfield state file.
const Magic uint32 = 0x4D335538

// Version is the current on-disk format version.
const Version uint16 = 1

const headerSize = 4 + 2 + 4 + 4 // magic + version + segment_count + crc32

// FileName is the conventional name of the state file within a workdir.
const FileName = "download_state.bitfield"

// Bitfield is an in-memory mirror of the on-disk bitfield state file.
type Bitfield struct {
	segmentCount int
	bits         []byte
}

// New allocates a fresh, all-clear bitfield for segmentCount segments.
func New(segmentCount int) *Bitfield {
	return &Bitfield{
		segmentCount: segmentCount,
		bits:         make([]byte, byteLen(segmentCount)),
	}
}

func byteLen(segmentCount int) int {
	return (segmentCount + 7) / 8
}

// SegmentCount returns N, the total number of segments this bitfield was
// sized for.
func (b *Bitfield) SegmentCount() int { return b.segmentCount }

// Set marks segment i complete.
func (b *Bitfield) Set(i int) {
	b.bits[i/8] |= 1 << (7 - uint(i%8))
}

// Clear marks segment i incomplete.
func (b *Bitfield) Clear(i int) {
	b.bits[i/8] &^= 1 << (7 - uint(i%8))
}

// IsSet reports whether segment i is complete.
func (b *Bitfield) IsSet(i int) bool {
	return b.bits[i/8]&(1<<(7-uint(i%8))) != 0
}

// Pending returns the indices whose bit is clear, ascending.
func (b *Bitfield) Pending() []int {
	var out []int
	for i := 0; i < b.segmentCount; i++ {
		if !b.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}

// Complete returns the indices whose bit is set, ascending.
func (b *Bitfield) Complete() []int {
	var out []int
	for i := 0; i < b.segmentCount; i++ {
		if b.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}

// AllComplete reports whether every segment's bit is set.
func (b *Bitfield) AllComplete() bool {
	for i := 0; i < b.segmentCount; i++ {
		if !b.IsSet(i) {
			return false
		}
	}
	return true
}

// encode serializes the bitfield to its on-disk byte layout.
func (b *Bitfield) encode() []byte {
	out := make([]byte, headerSize+len(b.bits))
	binary.BigEndian.PutUint32(out[0:4], Magic)
	binary.BigEndian.PutUint16(out[4:6], Version)
	binary.BigEndian.PutUint32(out[6:10], uint32(b.segmentCount))
	crc := crc32.ChecksumIEEE(b.bits)
	binary.BigEndian.PutUint32(out[10:14], crc)
	copy(out[14:], b.bits)
	return out
}

// Path returns the conventional state-file path for a workdir.
func Path(workdir string) string {
	return filepath.Join(workdir, FileName)
}

// Save writes the bitfield to path atomically.
func (b *Bitfield) Save(path string) error {
	return atomicfile.WriteBytes(path, b.encode())
}

// Load reads and validates a bitfield state file. Any structural problem
// (missing file, short read, bad magic, wrong version, segment-count
// mismatch, or a failed CRC check) is reported as (nil, false, nil) per
// the spec's "discard and start fresh" integrity policy — it is never a
// hard error to the caller, only a signal to reinitialize.
func Load(path string, expectedSegmentCount int) (*Bitfield, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("state: read %s: %w", path, err)
	}

	b, ok := decode(data, expectedSegmentCount)
	return b, ok, nil
}

func decode(data []byte, expectedSegmentCount int) (*Bitfield, bool) {
	if len(data) < headerSize {
		return nil, false
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	if magic != Magic {
		return nil, false
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != Version {
		return nil, false
	}
	segmentCount := int(binary.BigEndian.Uint32(data[6:10]))
	if expectedSegmentCount > 0 && segmentCount != expectedSegmentCount {
		return nil, false
	}
	storedCRC := binary.BigEndian.Uint32(data[10:14])
	bits := data[14:]
	if len(bits) != byteLen(segmentCount) {
		return nil, false
	}
	if crc32.ChecksumIEEE(bits) != storedCRC {
		return nil, false
	}

	b := &Bitfield{segmentCount: segmentCount, bits: append([]byte{}, bits...)}
	return b, true
}

// LockWorkdir acquires an advisory, process-exclusive lock on workdir's
// state file, guarding against two processes resuming the same download
// concurrently and racing each other's bitfield writes. The caller must
// Unlock the returned flock.Flock when done.
func LockWorkdir(workdir string) (*flock.Flock, error) {
	lock := flock.New(Path(workdir) + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("state: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state: workdir %s is already locked by another process", workdir)
	}
	return lock, nil
}

// Reconcile verifies every set bit's segment file actually exists and is
// non-empty, per the resume protocol's step 2: a bitfield can only ever be
// downgraded by file-existence checks, never upgraded, so a missing or
// empty file just clears the bit.
func (b *Bitfield) Reconcile(segmentPath func(i int) string) {
	for i := 0; i < b.segmentCount; i++ {
		if !b.IsSet(i) {
			continue
		}
		info, err := os.Stat(segmentPath(i))
		if err != nil || info.Size() == 0 {
			b.Clear(i)
		}
	}
}
