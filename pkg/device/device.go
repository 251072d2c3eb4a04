// Package device owns the benchmark's handle to the block device under test:
// direct-I/O open/close lifecycle, capacity probing, and the translation from
// a capacity fraction to an addressable block range.
package device

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/ncw/directio"
	"golang.org/x/sys/unix"
)

// BlockSize is the logical block size for all benchmark I/O. Every offset
// issued against the device is a multiple of this.
const BlockSize = directio.BlockSize

// preinitChunk is the write size used when pre-filling the exercised range.
// Large sequential writes make the fill pass fast; alignment still holds.
const preinitChunk = 2 * 1024 * 1024

// ErrUnavailable indicates the device path could not be opened for direct
// I/O (not found, permission denied, or not a block device / regular file).
var ErrUnavailable = errors.New("device unavailable")

// Device is an exclusive handle to the block device (or file) under test.
type Device struct {
	f        *os.File
	path     string
	capacity int64

	closeOnce sync.Once
	closeErr  error
}

// Open opens path read-write. With direct set, the page cache is bypassed so
// measured latency reflects the device rather than cache hits; tests running
// against filesystems without O_DIRECT support pass direct=false.
func Open(path string, direct bool) (*Device, error) {
	flags := os.O_RDWR
	if direct {
		flags |= syscall.O_DIRECT
	}
	f, err := os.OpenFile(path, flags, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	capacity, err := probeCapacity(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: probe capacity of %s: %v", ErrUnavailable, path, err)
	}
	if capacity < BlockSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s smaller than one block (%d bytes)", ErrUnavailable, path, capacity)
	}

	return &Device{f: f, path: path, capacity: capacity}, nil
}

// probeCapacity asks the kernel for the block device size, falling back to
// the file size for regular files.
func probeCapacity(f *os.File) (int64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err == nil {
		return int64(size), nil
	}
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Capacity returns the device size in bytes.
func (d *Device) Capacity() int64 { return d.capacity }

// Path returns the opened device path.
func (d *Device) Path() string { return d.path }

// Fd exposes the descriptor for ring setup. The descriptor is shared across
// writer workers; their offset ranges are disjoint so there is no contention.
func (d *Device) Fd() uintptr { return d.f.Fd() }

// Blocks returns the number of addressable blocks when exercising the given
// capacity fraction, rounded down to whole blocks.
func (d *Device) Blocks(fraction float64) int64 {
	return Blocks(d.capacity, fraction)
}

func Blocks(capacity int64, fraction float64) int64 {
	return int64(float64(capacity)*fraction) / BlockSize
}

// Range is a half-open block interval [Begin, End) owned by one worker.
type Range struct {
	Begin int64
	End   int64
}

// Blocks returns the number of blocks in the range.
func (r Range) Blocks() int64 { return r.End - r.Begin }

// Partition splits n blocks across participants into disjoint ranges. The
// last participant absorbs the remainder.
func Partition(id, participants int, n int64) Range {
	per := n / int64(participants)
	begin := int64(id) * per
	end := begin + per
	if id == participants-1 {
		end = n
	}
	return Range{Begin: begin, End: end}
}

// Sync issues a data-synchronizing barrier on the device.
func (d *Device) Sync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

// Preinitialize writes the exercised fraction of the device once end-to-end
// so that measured writes are all overwrites rather than a mix of
// allocate-on-write and overwrite, then syncs. The fill is sequential in
// large chunks and is not part of any measurement.
func (d *Device) Preinitialize(fraction float64) (int64, error) {
	buf := directio.AlignedBlock(preinitChunk)
	for i := range buf {
		buf[i] = 0x5a
	}

	writes := int64(float64(d.capacity) * fraction / preinitChunk)
	var written int64
	for i := int64(0); i < writes; i++ {
		n, err := d.f.WriteAt(buf, i*preinitChunk)
		if err != nil {
			return written, fmt.Errorf("preinitialize write at %d: %w", i*preinitChunk, err)
		}
		written += int64(n)
	}
	if err := d.Sync(); err != nil {
		return written, fmt.Errorf("preinitialize sync: %w", err)
	}
	return written, nil
}

// Close releases the descriptor. It is idempotent; every exit path may call
// it without tracking whether another already has.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.f.Close()
	})
	return d.closeErr
}
