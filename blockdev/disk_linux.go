//go:build linux

package blockdev

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Disk is a raw block device or image file accessed with pread and pwrite,
// such as /dev/mmcblk0 for an SD card.
type Disk struct {
	fd       int
	size     int64
	readonly bool
}

// OpenDisk opens the device at path. The size of block devices is queried
// with the BLKGETSIZE64 ioctl.
func OpenDisk(path string, readonly bool) (*Disk, error) {
	flag := unix.O_RDWR
	if readonly {
		flag = unix.O_RDONLY
	}
	fd, err := unix.Open(path, flag|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening disk %s: %w", path, err)
	}
	size, err := deviceSize(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sizing disk %s: %w", path, err)
	}
	if size%BlockSize != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrBadImage)
	}
	return &Disk{fd: fd, size: size, readonly: readonly}, nil
}

func deviceSize(fd int) (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return 0, err
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFBLK {
		return stat.Size, nil
	}
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}

// Size returns the device size in bytes.
func (d *Disk) Size() int64 { return d.size }

func (d *Disk) ReadBlocks(dst []byte, startBlock int64) error {
	if err := checkRange(len(dst), startBlock, d.size); err != nil {
		return err
	}
	return d.pread(dst, startBlock*BlockSize)
}

func (d *Disk) ReadPartial(dst []byte, block int64, offset int) error {
	if err := checkPartial(len(dst), block, offset, d.size); err != nil {
		return err
	}
	return d.pread(dst, block*BlockSize+int64(offset))
}

func (d *Disk) pread(dst []byte, off int64) error {
	for len(dst) > 0 {
		n, err := unix.Pread(d.fd, dst, off)
		if err != nil {
			return fmt.Errorf("%w: pread at offset %d: %w", ErrRead, off, err)
		} else if n == 0 {
			return ErrOutOfRange
		}
		dst = dst[n:]
		off += int64(n)
	}
	return nil
}

func (d *Disk) WriteBlocks(data []byte, startBlock int64) error {
	if d.readonly {
		return ErrReadOnly
	} else if err := checkRange(len(data), startBlock, d.size); err != nil {
		return err
	}
	return d.pwrite(data, startBlock*BlockSize)
}

func (d *Disk) pwrite(data []byte, off int64) error {
	for len(data) > 0 {
		n, err := unix.Pwrite(d.fd, data, off)
		if err != nil {
			return fmt.Errorf("%w: pwrite at offset %d: %w", ErrWrite, off, err)
		}
		data = data[n:]
		off += int64(n)
	}
	return nil
}

// EraseBlocks zeroes blocks first through last inclusive.
func (d *Disk) EraseBlocks(first, last int64) error {
	if d.readonly {
		return ErrReadOnly
	} else if err := checkErase(first, last, d.size); err != nil {
		return err
	}
	var zero [BlockSize]byte
	for block := first; block <= last; block++ {
		if err := d.pwrite(zero[:], block*BlockSize); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes written blocks to the device.
func (d *Disk) Sync() error { return unix.Fsync(d.fd) }

// Close syncs and closes the device.
func (d *Disk) Close() error {
	var err error
	if !d.readonly {
		err = unix.Fsync(d.fd)
	}
	if cerr := unix.Close(d.fd); err == nil {
		err = cerr
	}
	return err
}
