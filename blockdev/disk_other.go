//go:build !linux

package blockdev

import "errors"

// Disk is only available on Linux.
type Disk struct{ Device }

// OpenDisk is only available on Linux.
func OpenDisk(path string, readonly bool) (*Disk, error) {
	return nil, errors.New("blockdev: raw disks are only supported on linux")
}

// Sync is only available on Linux.
func (d *Disk) Sync() error { return nil }

// Close is only available on Linux.
func (d *Disk) Close() error { return nil }
