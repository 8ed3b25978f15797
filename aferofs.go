package sdfat

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
)

var (
	_ afero.Fs   = (*AferoFS)(nil)
	_ afero.File = (*aferoFile)(nil)
)

// AferoFS exposes a mounted [FS] as an afero.Fs. FAT stores no owner or
// permission bits: Chmod maps the owner write bit to the read-only
// attribute and Chown is not supported. Rename is not supported.
//
// Like FS, an AferoFS and the files it opens must be used from a single
// goroutine.
type AferoFS struct {
	fsys *FS
}

// NewAferoFS returns an afero.Fs view of fsys.
func NewAferoFS(fsys *FS) *AferoFS {
	return &AferoFS{fsys: fsys}
}

// Name returns the name of the filesystem.
func (a *AferoFS) Name() string { return "sdfat" }

// Create creates or truncates the named file.
func (a *AferoFS) Create(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// Open opens the named file or directory for reading.
func (a *AferoFS) Open(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens the named file with os.OpenFile flags. perm is ignored.
func (a *AferoFS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	clean := cleanPath(name)
	f, err := a.fsys.Open(clean, modeFromFlag(flag))
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return &aferoFile{f: f, name: clean}, nil
}

func modeFromFlag(flag int) Mode {
	var mode Mode
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		mode = ModeRead
	case os.O_WRONLY:
		mode = ModeWrite
	default:
		mode = ModeRW
	}
	if flag&os.O_APPEND != 0 {
		mode |= ModeAppend
	}
	if flag&os.O_CREATE != 0 {
		mode |= ModeCreate
	}
	if flag&os.O_EXCL != 0 {
		mode |= ModeExcl
	}
	if flag&os.O_TRUNC != 0 {
		mode |= ModeTrunc
	}
	if flag&os.O_SYNC != 0 {
		mode |= ModeSync
	}
	return mode
}

// Mkdir creates a single directory. Its parent must exist.
func (a *AferoFS) Mkdir(name string, perm os.FileMode) error {
	err := WalkPath(cleanPath(name), a.fsys.Root(), func(parent *File, base string, last bool) error {
		if !last {
			return nil
		}
		var dir File
		if err := dir.MakeDir(parent, base); err != nil {
			return err
		}
		return dir.Close()
	})
	return pathError("mkdir", name, err)
}

// MkdirAll creates a directory and any missing parents.
func (a *AferoFS) MkdirAll(name string, perm os.FileMode) error {
	return pathError("mkdir", name, a.fsys.Mkdir(cleanPath(name)))
}

// Remove removes a file or an empty directory.
func (a *AferoFS) Remove(name string) error {
	err := WalkPath(cleanPath(name), a.fsys.Root(), func(parent *File, base string, last bool) error {
		if !last {
			return nil
		}
		var f File
		if err := f.Open(parent, base, ModeRead); err != nil {
			return err
		}
		if f.IsDir() {
			return f.RmDir()
		}
		f.Close()
		return parent.RemovePath(base)
	})
	return pathError("remove", name, err)
}

// RemoveAll removes name and everything under it. A missing name is not an
// error.
func (a *AferoFS) RemoveAll(name string) error {
	err := a.fsys.RemoveAll(cleanPath(name))
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	return pathError("removeall", name, err)
}

// Rename is not supported.
func (a *AferoFS) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrUnsupported}
}

// Stat returns file information for name.
func (a *AferoFS) Stat(name string) (os.FileInfo, error) {
	f, err := a.fsys.Open(cleanPath(name), ModeRead)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	defer f.Close()
	info, err := statFile(f)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return info, nil
}

// Chmod sets the read-only attribute when mode has no owner write bit and
// clears it otherwise.
func (a *AferoFS) Chmod(name string, mode os.FileMode) error {
	f, err := a.fsys.Open(cleanPath(name), ModeRead)
	if err != nil {
		return pathError("chmod", name, err)
	}
	if f.IsRoot() {
		return pathError("chmod", name, ErrInvalidParameter)
	}
	d, err := f.cacheDirEntry(cacheForWrite)
	if err != nil {
		f.Close()
		return pathError("chmod", name, err)
	}
	attr := d.Attributes() &^ AttrReadOnly
	if mode&0o200 == 0 {
		attr |= AttrReadOnly
	}
	d.setAttributes(attr)
	return pathError("chmod", name, f.Close())
}

// Chown is not supported.
func (a *AferoFS) Chown(name string, uid, gid int) error {
	return pathError("chown", name, ErrUnsupported)
}

// Chtimes sets the access date and modification time of name.
func (a *AferoFS) Chtimes(name string, atime, mtime time.Time) error {
	f, err := a.fsys.Open(cleanPath(name), ModeRead)
	if err != nil {
		return pathError("chtimes", name, err)
	}
	defer f.Close()
	err = f.Timestamp(TimestampAccess, atime)
	if err == nil {
		err = f.Timestamp(TimestampWrite, mtime)
	}
	return pathError("chtimes", name, err)
}

type aferoFile struct {
	f    *File
	name string
}

func (af *aferoFile) Name() string { return af.name }

func (af *aferoFile) Close() error { return af.wrap("close", af.f.Close()) }

func (af *aferoFile) Read(p []byte) (int, error) {
	n, err := af.f.Read(p)
	if err == io.EOF {
		return n, err
	}
	return n, af.wrap("read", err)
}

// ReadAt reads at off without moving the file position.
func (af *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(af.f.Size()) {
		return 0, io.EOF
	}
	pos := af.f.Position()
	if _, err := af.f.Seek(off, io.SeekStart); err != nil {
		return 0, af.wrap("read", err)
	}
	n, err := io.ReadFull(af.f, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if serr := af.f.SeekSet(pos); err == nil && serr != nil {
		err = af.wrap("read", serr)
	}
	return n, err
}

func (af *aferoFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := af.f.Seek(offset, whence)
	return pos, af.wrap("seek", err)
}

func (af *aferoFile) Write(p []byte) (int, error) {
	n, err := af.f.Write(p)
	return n, af.wrap("write", err)
}

// WriteAt writes at off without moving the file position. off must not lie
// past the end of file.
func (af *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	pos := af.f.Position()
	if _, err := af.f.Seek(off, io.SeekStart); err != nil {
		return 0, af.wrap("write", err)
	}
	n, err := af.f.Write(p)
	if err != nil {
		return n, af.wrap("write", err)
	}
	return n, af.wrap("write", af.f.SeekSet(pos))
}

func (af *aferoFile) WriteString(s string) (int, error) {
	return af.Write([]byte(s))
}

// Readdir returns up to count entries following the previous call. With
// count <= 0 every remaining entry is returned.
func (af *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	if !af.f.IsDir() {
		return nil, af.wrap("readdir", ErrNotDir)
	}
	var infos []os.FileInfo
	var de DirEntry
	for count <= 0 || len(infos) < count {
		err := af.f.ReadDir(&de)
		if err == io.EOF {
			break
		} else if err != nil {
			return infos, af.wrap("readdir", err)
		}
		infos = append(infos, entryInfo(de))
	}
	if count > 0 && len(infos) == 0 {
		return nil, io.EOF
	}
	return infos, nil
}

func (af *aferoFile) Readdirnames(count int) ([]string, error) {
	infos, err := af.Readdir(count)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (af *aferoFile) Stat() (os.FileInfo, error) {
	info, err := statFile(af.f)
	if err != nil {
		return nil, af.wrap("stat", err)
	}
	return info, nil
}

func (af *aferoFile) Sync() error { return af.wrap("sync", af.f.Sync()) }

// Truncate shrinks the file, or grows it with zeros.
func (af *aferoFile) Truncate(size int64) error {
	f := af.f
	if size < 0 || size > int64(^uint32(0)) {
		return af.wrap("truncate", ErrOutOfRange)
	}
	if size <= int64(f.Size()) {
		return af.wrap("truncate", f.Truncate(uint32(size)))
	}
	pos := f.Position()
	if err := f.SeekSet(f.Size()); err != nil {
		return af.wrap("truncate", err)
	}
	var zero [BlockSize]byte
	for remain := size - int64(f.Size()); remain > 0; {
		n := min(remain, BlockSize)
		if _, err := f.Write(zero[:n]); err != nil {
			return af.wrap("truncate", err)
		}
		remain -= n
	}
	return af.wrap("truncate", f.SeekSet(pos))
}

func (af *aferoFile) wrap(op string, err error) error {
	return pathError(op, af.name, err)
}

// fileInfo implements os.FileInfo for a directory entry.
type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	entry   DirEntry
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.mode.IsDir() }

// Sys returns the DirEntry of the file, or nil for the root directory.
func (fi *fileInfo) Sys() any {
	if fi.entry.data == nil {
		return nil
	}
	return fi.entry
}

func entryInfo(de DirEntry) *fileInfo {
	var own DirEntry
	own.copyFrom(de)
	fi := &fileInfo{
		name:    de.Name(),
		size:    int64(de.Size()),
		mode:    0o666,
		modTime: de.ModTime(),
		entry:   own,
	}
	if de.IsSubdir() {
		fi.mode = fs.ModeDir | 0o777
		fi.size = 0
	}
	if de.Attributes().IsReadonly() {
		fi.mode &^= 0o222
	}
	return fi
}

func statFile(f *File) (*fileInfo, error) {
	if f.IsRoot() {
		return &fileInfo{name: "/", mode: fs.ModeDir | 0o777}, nil
	}
	de, err := f.DirEntry()
	if err != nil {
		return nil, err
	}
	return entryInfo(de), nil
}

// cleanPath returns name as a rooted, cleaned path.
func cleanPath(name string) string {
	return path.Clean("/" + name)
}

// pathError wraps err for os and afero callers. Errors matching an io/fs
// sentinel are replaced by it so os.IsNotExist and friends work.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range [...]error{fs.ErrNotExist, fs.ErrExist, fs.ErrPermission, fs.ErrClosed, fs.ErrInvalid} {
		if errors.Is(err, target) {
			err = target
			break
		}
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}
