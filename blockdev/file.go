package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// File is a disk image file opened through an afero.Fs. Reads and writes
// go straight to the file.
type File struct {
	f        afero.File
	size     int64
	readonly bool
}

// OpenFile opens an existing image. Its size must be a multiple of
// BlockSize.
func OpenFile(fsys afero.Fs, name string, readonly bool) (*File, error) {
	flag := os.O_RDWR
	if readonly {
		flag = os.O_RDONLY
	}
	f, err := fsys.OpenFile(name, flag, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size()%BlockSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrBadImage)
	}
	return &File{f: f, size: info.Size(), readonly: readonly}, nil
}

// CreateFile creates or truncates an image of numBlocks zeroed blocks.
func CreateFile(fsys afero.Fs, name string, numBlocks int64) (*File, error) {
	f, err := fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	size := numBlocks * BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: size}, nil
}

// Size returns the image size in bytes.
func (d *File) Size() int64 { return d.size }

// Name returns the name of the image file.
func (d *File) Name() string { return d.f.Name() }

func (d *File) ReadBlocks(dst []byte, startBlock int64) error {
	if err := checkRange(len(dst), startBlock, d.size); err != nil {
		return err
	}
	return d.readAt(dst, startBlock*BlockSize)
}

func (d *File) ReadPartial(dst []byte, block int64, offset int) error {
	if err := checkPartial(len(dst), block, offset, d.size); err != nil {
		return err
	}
	return d.readAt(dst, block*BlockSize+int64(offset))
}

func (d *File) readAt(dst []byte, off int64) error {
	n, err := d.f.ReadAt(dst, off)
	if errors.Is(err, io.EOF) && n < len(dst) {
		// Sparse tail of a file grown with Truncate.
		clear(dst[n:])
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	return nil
}

func (d *File) WriteBlocks(data []byte, startBlock int64) error {
	if d.readonly {
		return ErrReadOnly
	} else if err := checkRange(len(data), startBlock, d.size); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(data, startBlock*BlockSize); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// EraseBlocks zeroes blocks first through last inclusive.
func (d *File) EraseBlocks(first, last int64) error {
	if d.readonly {
		return ErrReadOnly
	} else if err := checkErase(first, last, d.size); err != nil {
		return err
	}
	var zero [BlockSize]byte
	for block := first; block <= last; block++ {
		if _, err := d.f.WriteAt(zero[:], block*BlockSize); err != nil {
			return fmt.Errorf("%w: %w", ErrErase, err)
		}
	}
	return nil
}

// Sync commits the image to storage.
func (d *File) Sync() error { return d.f.Sync() }

// Close syncs and closes the image.
func (d *File) Close() error {
	var err error
	if !d.readonly {
		err = d.f.Sync()
	}
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}
