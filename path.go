package sdfat

import (
	"errors"
	"fmt"
	"log/slog"
)

// maxComponentLen is the longest path component passed to a [WalkFunc],
// long enough for "NAME.EXT" forms. Excess characters are dropped.
const maxComponentLen = 12

// WalkFunc is called by [WalkPath] for every component of a path with the
// directory holding it. last is true for the final component. Returning an
// error stops the walk.
type WalkFunc func(parent *File, name string, last bool) error

// WalkPath calls fn for each '/' separated component of path, starting in
// directory start and descending through the intermediate components.
// Handles opened on the way are closed before WalkPath returns; start is
// left open. An intermediate component that does not exist fails with
// [ErrNoPath].
func WalkPath(path string, start *File, fn WalkFunc) error {
	var handles [2]File
	parent := start
	child := &handles[0]
	offset := 0
	for {
		name, next, more := nextPathComponent(path, offset)
		offset = next
		if err := fn(parent, name, !more); err != nil {
			if parent != start {
				parent.Close()
			}
			return err
		}
		if !more {
			break
		}
		err := child.Open(parent, name, ModeRead)
		if parent != start {
			parent.Close()
		}
		if errors.Is(err, ErrNotExist) {
			return ErrNoPath
		} else if err != nil {
			return err
		}
		if parent == start {
			parent = &handles[1]
		}
		parent, child = child, parent
	}
	if parent != start {
		return parent.Close()
	}
	return nil
}

// nextPathComponent returns the component starting at offset, the offset of
// the following one and whether more components follow.
func nextPathComponent(path string, offset int) (name string, next int, more bool) {
	if offset < len(path) && path[offset] == '/' {
		offset++
	}
	start := offset
	for offset < len(path) && path[offset] != '/' {
		offset++
	}
	end := min(offset, start+maxComponentLen)
	if offset < len(path) {
		offset++ // Trailing separator.
	}
	return path[start:end], offset, offset < len(path)
}

// pathExists fails unless name can be opened in parent.
func pathExists(parent *File, name string, _ bool) error {
	var child File
	if err := child.Open(parent, name, ModeRead); err != nil {
		return err
	}
	return child.Close()
}

// makeDirPath creates name in parent unless it exists.
func makeDirPath(parent *File, name string, last bool) error {
	err := pathExists(parent, name, last)
	if !errors.Is(err, ErrNotExist) {
		return err
	}
	var child File
	if err := child.MakeDir(parent, name); err != nil {
		return err
	}
	return child.Close()
}

// removeLast removes the final component, which must be a file.
func removeLast(parent *File, name string, last bool) error {
	if !last {
		return nil
	}
	return parent.RemovePath(name)
}

// rmdirLast removes the final component, which must be an empty directory.
func rmdirLast(parent *File, name string, last bool) error {
	if !last {
		return nil
	}
	var dir File
	if err := dir.Open(parent, name, ModeRead); err != nil {
		return err
	}
	return dir.RmDir()
}

// removeAllLast removes the final component and everything below it.
func removeAllLast(parent *File, name string, last bool) error {
	if !last {
		return nil
	}
	var f File
	if err := f.Open(parent, name, ModeRead); err != nil {
		return err
	}
	if f.IsDir() {
		return f.RmRf()
	}
	f.flags |= ModeWrite // Read-only files are removed too.
	return f.Remove()
}

// FS is a mounted volume with its root directory open, addressed with '/'
// separated paths relative to the root. Like the Volume it wraps, an FS must
// only be used from one goroutine at a time.
type FS struct {
	vol  Volume
	root File
}

// SetLogger sets the volume logger. See [Volume.SetLogger].
func (fsys *FS) SetLogger(log *slog.Logger) { fsys.vol.SetLogger(log) }

// SetClock sets the volume clock. See [Volume.SetClock].
func (fsys *FS) SetClock(clock Clock) { fsys.vol.SetClock(clock) }

// Mount mounts the first partition of dev, or the whole device when it has
// no partition table, and opens the root directory.
func (fsys *FS) Mount(dev BlockDevice) error {
	fsys.root = File{}
	if err := fsys.vol.InitTryBoth(dev); err != nil {
		return err
	}
	return fsys.root.OpenRoot(&fsys.vol)
}

// MountPartition mounts MBR partition part of dev, 1 to 4, or the whole
// device when part is 0.
func (fsys *FS) MountPartition(dev BlockDevice, part uint8) error {
	fsys.root = File{}
	if err := fsys.vol.Init(dev, part); err != nil {
		return err
	}
	return fsys.root.OpenRoot(&fsys.vol)
}

// Unmount closes the root directory, refreshes the FAT32 free cluster count
// and flushes the cache.
func (fsys *FS) Unmount() error {
	if err := fsys.root.Close(); err != nil {
		return err
	}
	if err := fsys.vol.updateFSInfo(); err != nil {
		return err
	}
	return fsys.vol.Flush()
}

// Root returns the open root directory.
func (fsys *FS) Root() *File { return &fsys.root }

// Volume returns the mounted volume.
func (fsys *FS) Volume() *Volume { return &fsys.vol }

// Open opens the file or directory at path. A path naming the root or ending
// in '/' opens the directory itself.
//
// A handle always starts at position 0. This differs from the SD card file
// API, whose open seeks to end of file for any write mode: here only
// [ModeAppend] writes at the end, and plain [ModeWrite] overwrites from the
// start, as with [os.O_WRONLY].
func (fsys *FS) Open(path string, mode Mode) (*File, error) {
	f := new(File)
	err := WalkPath(path, &fsys.root, func(parent *File, name string, last bool) error {
		if !last {
			return nil
		} else if name == "" {
			*f = *parent
			f.Rewind()
			return nil
		}
		return f.Open(parent, name, mode)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Exists reports whether path names a file or directory.
func (fsys *FS) Exists(path string) bool {
	if isRootPath(path) {
		return true
	}
	return WalkPath(path, &fsys.root, pathExists) == nil
}

// Mkdir creates the directory at path along with any missing parents.
// Existing directories are not an error.
func (fsys *FS) Mkdir(path string) error {
	if isRootPath(path) {
		return nil
	}
	if err := WalkPath(path, &fsys.root, makeDirPath); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove removes the file at path.
func (fsys *FS) Remove(path string) error {
	if err := WalkPath(path, &fsys.root, removeLast); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Rmdir removes the empty directory at path.
func (fsys *FS) Rmdir(path string) error {
	if err := WalkPath(path, &fsys.root, rmdirLast); err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	return nil
}

// RemoveAll removes path and everything under it. Removing the root empties
// it.
func (fsys *FS) RemoveAll(path string) error {
	var err error
	if isRootPath(path) {
		root := fsys.root
		err = root.RmRf()
	} else {
		err = WalkPath(path, &fsys.root, removeAllLast)
	}
	if err != nil {
		return fmt.Errorf("removeall %s: %w", path, err)
	}
	return nil
}

func isRootPath(path string) bool {
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			return false
		}
	}
	return true
}
