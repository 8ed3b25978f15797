package sdfat

import (
	"io"
	"strconv"
	"time"
)

// readDirCache caches the block of the entry at the current position and
// returns a view of it, advancing the position to the next entry.
func (f *File) readDirCache() (DirEntry, error) {
	if !f.IsDir() {
		return DirEntry{}, ErrNotDir
	} else if f.curPosition >= f.fileSize {
		return DirEntry{}, io.EOF
	}
	i := uint8(f.curPosition>>5) & 0xF
	block, err := f.dataBlock()
	if err != nil {
		return DirEntry{}, err
	}
	if err := f.vol.cache.cacheRawBlock(block, cacheForRead); err != nil {
		return DirEntry{}, err
	}
	f.curPosition += sizeDirEntry
	return f.vol.cache.dirEntry(i), nil
}

// addDirCluster grows a directory by one zeroed cluster. The first block of
// the new cluster is left in the cache.
func (f *File) addDirCluster() error {
	if err := f.addCluster(); err != nil {
		return err
	}
	vol := f.vol
	block := vol.clusterStartBlock(f.curCluster)
	for i := uint32(vol.blocksPerCluster); i != 0; i-- {
		if err := vol.cache.zeroBlock(block + i - 1); err != nil {
			return err
		}
	}
	f.fileSize += BlockSize << vol.clusterSizeShift
	return nil
}

// OpenByIndex opens the index'th 32 byte entry of dir. Free, deleted and
// dot entries can not be opened.
func (f *File) OpenByIndex(dir *File, index uint16, mode Mode) error {
	if f.IsOpen() {
		return ErrAlreadyOpen
	} else if mode&(ModeCreate|ModeExcl) != 0 {
		return ErrInvalidParameter
	}
	f.vol = dir.vol
	if err := dir.SeekSet(sizeDirEntry * uint32(index)); err != nil {
		return err
	}
	p, err := dir.readDirCache()
	if err == io.EOF {
		return ErrNotExist
	} else if err != nil {
		return err
	}
	if p.IsFree() || p.IsDeleted() || p.IsDot() {
		return ErrNotExist
	}
	return f.openCachedEntry(uint8(index&0xF), mode)
}

// MakeDir creates the subdirectory name in parent and opens it in f.
func (f *File) MakeDir(parent *File, name string) error {
	if err := f.Open(parent, name, ModeCreate|ModeExcl|ModeRW); err != nil {
		return err
	}
	f.flags = ModeRead
	f.typ = fileTypeSubdir
	if err := f.addDirCluster(); err != nil {
		return err
	}
	// Write the first cluster into the entry.
	if err := f.Sync(); err != nil {
		return err
	}
	p, err := f.cacheDirEntry(cacheForWrite)
	if err != nil {
		return err
	}
	p.setAttributes(AttrDirectory)

	var dots [2 * sizeDirEntry]byte
	dot := DirEntry{data: dots[:sizeDirEntry]}
	copy(dot.data, p.data)
	dot.setShortName(dotName)
	dotdot := DirEntry{data: dots[sizeDirEntry:]}
	copy(dotdot.data, dot.data)
	dotdot.setShortName(dotDotName)
	if parent.IsRoot() {
		dotdot.setFirstCluster(0)
	} else {
		dotdot.setFirstCluster(parent.firstCluster)
	}

	vol := f.vol
	if err := vol.cache.cacheRawBlock(vol.clusterStartBlock(f.firstCluster), cacheForWrite); err != nil {
		return err
	}
	copy(vol.cache.data[:], dots[:])
	f.curPosition = 2 * sizeDirEntry
	return vol.cache.flush()
}

// Remove truncates the file, marks its entry deleted and closes the handle.
// The handle must be an open file with write access.
func (f *File) Remove() error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	d, err := f.cacheDirEntry(cacheForWrite)
	if err != nil {
		return err
	}
	d.data[dirNameOff] = dirNameDeleted
	f.typ = fileTypeClosed
	return f.vol.cache.flush()
}

// RemovePath removes the file name from directory f.
func (f *File) RemovePath(name string) error {
	var file File
	if err := file.Open(f, name, ModeWrite); err != nil {
		return err
	}
	return file.Remove()
}

// RmDir removes the subdirectory f, which must be empty.
func (f *File) RmDir() error {
	if !f.IsSubdir() {
		return ErrNotDir
	}
	f.Rewind()
	for f.curPosition < f.fileSize {
		p, err := f.readDirCache()
		if err != nil {
			return err
		}
		if p.IsFree() {
			break
		} else if p.IsDeleted() || p.IsDot() {
			continue
		} else if p.IsFileOrSubdir() {
			return ErrNotEmpty
		}
	}
	// Remove it as a file to free its cluster and delete the entry.
	f.typ = fileTypeNormal
	f.flags |= ModeWrite
	return f.Remove()
}

// RmRf removes every file and subdirectory under f, read-only files
// included, and then f itself unless it is a root directory.
func (f *File) RmRf() error {
	if !f.IsDir() {
		return ErrNotDir
	}
	f.Rewind()
	for f.curPosition < f.fileSize {
		index := uint16(f.curPosition / sizeDirEntry)
		p, err := f.readDirCache()
		if err != nil {
			return err
		}
		if p.IsFree() {
			break
		} else if p.IsDeleted() || p.IsDot() || !p.IsFileOrSubdir() {
			continue
		}
		var child File
		if err := child.OpenByIndex(f, index, ModeRead); err != nil {
			return err
		}
		if child.IsSubdir() {
			err = child.RmRf()
		} else {
			child.flags |= ModeWrite
			err = child.Remove()
		}
		if err != nil {
			return err
		}
		next := sizeDirEntry * (uint32(index) + 1)
		if f.curPosition != next {
			if err := f.SeekSet(next); err != nil {
				return err
			}
		}
	}
	if f.IsRoot() {
		return nil
	}
	return f.RmDir()
}

// ReadDir copies the next file or subdirectory entry into de, skipping
// free, deleted, dot and volume label entries. It returns io.EOF after the
// last entry.
func (f *File) ReadDir(de *DirEntry) error {
	if !f.IsDir() || f.curPosition&(sizeDirEntry-1) != 0 {
		return ErrInvalidParameter
	}
	for {
		p, err := f.readDirCache()
		if err != nil {
			return err
		}
		if p.IsFree() {
			return io.EOF
		} else if p.IsDeleted() || p.IsDot() || !p.IsFileOrSubdir() {
			continue
		}
		de.copyFrom(p)
		return nil
	}
}

// DirEntry syncs the file and returns a copy of its directory entry.
func (f *File) DirEntry() (DirEntry, error) {
	if f.IsRoot() {
		return DirEntry{}, ErrInvalidParameter
	}
	if err := f.Sync(); err != nil {
		return DirEntry{}, err
	}
	p, err := f.cacheDirEntry(cacheForRead)
	if err != nil {
		return DirEntry{}, err
	}
	var de DirEntry
	de.copyFrom(p)
	return de, nil
}

// TimestampFlag selects the timestamps set by [File.Timestamp].
type TimestampFlag uint8

const (
	TimestampAccess TimestampFlag = 1 << iota
	TimestampCreate
	TimestampWrite
)

// Timestamp sets the selected timestamps of the file's directory entry to t,
// truncated to the second. t must fall in 1980..2107.
func (f *File) Timestamp(flags TimestampFlag, t time.Time) error {
	if !f.IsOpen() {
		return ErrClosed
	} else if f.IsRoot() {
		return ErrInvalidParameter
	} else if year := t.Year(); year < 1980 || year > 2107 {
		return ErrOutOfRange
	}
	d, err := f.cacheDirEntry(cacheForWrite)
	if err != nil {
		return err
	}
	dt := newDatetime(t.Truncate(time.Second))
	if flags&TimestampAccess != 0 {
		d.setAccessDate(dt.date)
	}
	if flags&TimestampCreate != 0 {
		d.setCreated(dt)
	}
	if flags&TimestampWrite != 0 {
		d.setModified(dt)
	}
	return f.Sync()
}

// LsFlag selects the columns and recursion of [File.Ls].
type LsFlag uint8

const (
	LsDate      LsFlag = 1 << iota // Print the modification date and time.
	LsSize                         // Print the size of files.
	LsRecursive                    // List subdirectories.
)

// Ls writes a listing of directory f to w, one entry per line, indented by
// indent spaces. Subdirectory names end in '/'.
func (f *File) Ls(w io.Writer, flags LsFlag, indent int) error {
	if !f.IsDir() {
		return ErrNotDir
	}
	var line []byte
	f.Rewind()
	for {
		p, err := f.readDirCache()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if p.IsFree() {
			return nil
		} else if p.IsDeleted() || p.IsDot() || !p.IsFileOrSubdir() {
			continue
		}
		line = appendLsLine(line[:0], p, flags, indent)
		if _, err := w.Write(line); err != nil {
			return err
		}
		if flags&LsRecursive == 0 || !p.IsSubdir() {
			continue
		}
		index := uint16(f.curPosition/sizeDirEntry - 1)
		var sub File
		if err := sub.OpenByIndex(f, index, ModeRead); err != nil {
			return err
		}
		if err := sub.Ls(w, flags, indent+2); err != nil {
			return err
		}
		if err := f.SeekSet(sizeDirEntry * (uint32(index) + 1)); err != nil {
			return err
		}
	}
}

func appendLsLine(dst []byte, p DirEntry, flags LsFlag, indent int) []byte {
	for i := 0; i < indent; i++ {
		dst = append(dst, ' ')
	}
	start := len(dst)
	dst = append(dst, p.Name()...)
	if p.IsSubdir() {
		dst = append(dst, '/')
	}
	if flags&(LsDate|LsSize) != 0 {
		for len(dst)-start < 14 {
			dst = append(dst, ' ')
		}
	}
	if flags&LsDate != 0 {
		dst = p.ModTime().AppendFormat(dst, "2006-01-02 15:04:05")
	}
	if flags&LsSize != 0 && !p.IsSubdir() {
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, uint64(p.Size()), 10)
	}
	return append(dst, '\n')
}
