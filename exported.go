package sdfat

import (
	"errors"
	"io"
	"math"
)

// Mode represents the open flags passed to [File.Open].
type Mode uint8

// Open flags. ModeCreate only creates when combined with ModeWrite.
const (
	ModeRead   Mode = 0x01 // Open for reading.
	ModeWrite  Mode = 0x02 // Open for writing.
	ModeRW     Mode = ModeRead | ModeWrite
	ModeAppend Mode = 0x04 // Every write goes to the end of file.
	ModeSync   Mode = 0x08 // Sync after every write.
	ModeCreate Mode = 0x10 // Create the file if it does not exist.
	ModeExcl   Mode = 0x20 // With ModeCreate, fail if the file exists.
	ModeTrunc  Mode = 0x40 // Truncate to zero length on open.
)

var errNegativeSeek = errors.New("sdfat: seek to negative or too large position")

// Seek implements [io.Seeker]. Seeking past the end of file is not allowed.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(f.curPosition)
	case io.SeekEnd:
		base = int64(f.fileSize)
	default:
		return int64(f.curPosition), ErrInvalidParameter
	}
	pos := base + offset
	if pos < 0 || pos > math.MaxUint32 {
		return int64(f.curPosition), errNegativeSeek
	}
	if err := f.SeekSet(uint32(pos)); err != nil {
		return int64(f.curPosition), err
	}
	return pos, nil
}

// SeekCur moves the position by offset bytes.
func (f *File) SeekCur(offset int32) error {
	_, err := f.Seek(int64(offset), io.SeekCurrent)
	return err
}

// SeekEnd moves the position to offset bytes from the end of file.
func (f *File) SeekEnd(offset int32) error {
	_, err := f.Seek(int64(offset), io.SeekEnd)
	return err
}

// Rewind moves the position to the start of the file.
func (f *File) Rewind() {
	f.curPosition = 0
	f.curCluster = 0
}

// ReadByte reads the next byte. It implements [io.ByteReader].
func (f *File) ReadByte() (byte, error) {
	var b [1]byte
	_, err := f.Read(b[:])
	return b[0], err
}

// WriteString writes s to the file.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// SetClock overrides the volume clock for this handle.
func (f *File) SetClock(clock Clock) { f.clock = clock }

// SetUnbufferedRead makes reads bypass the cache for blocks it does not hold.
// The setting is cleared when the handle is opened again.
func (f *File) SetUnbufferedRead(unbuffered bool) {
	if f.IsOpen() {
		f.unbuffered = unbuffered
	}
}

// Mode returns the access mode bits the file was opened with.
func (f *File) Mode() Mode { return f.flags }

// Size returns the file size in bytes. For directories it is the size of
// the cluster chain or the fixed FAT16 root directory.
func (f *File) Size() uint32 { return f.fileSize }

// Position returns the current byte offset.
func (f *File) Position() uint32 { return f.curPosition }

// FirstCluster returns the first cluster of the file, 0 when it has none.
func (f *File) FirstCluster() uint32 { return f.firstCluster }

// Volume returns the volume the handle was opened on.
func (f *File) Volume() *Volume { return f.vol }

// IsOpen reports whether the handle is open.
func (f *File) IsOpen() bool { return f.typ != fileTypeClosed }

// IsFile reports whether the handle is an open normal file.
func (f *File) IsFile() bool { return f.typ == fileTypeNormal }

// IsDir reports whether the handle is an open directory, root included.
func (f *File) IsDir() bool { return f.typ >= fileTypeRoot16 }

// IsSubdir reports whether the handle is an open subdirectory.
func (f *File) IsSubdir() bool { return f.typ == fileTypeSubdir }

// IsRoot reports whether the handle is an open root directory.
func (f *File) IsRoot() bool { return f.typ == fileTypeRoot16 || f.typ == fileTypeRoot32 }

// WriteErr reports whether a write on this handle has failed.
func (f *File) WriteErr() bool { return f.writeErr }

// ClearWriteErr resets the write error flag.
func (f *File) ClearWriteErr() { f.writeErr = false }
