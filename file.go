package sdfat

import (
	"io"
	"math"
	"time"
)

type fileType uint8

const (
	fileTypeClosed fileType = iota
	fileTypeNormal
	fileTypeRoot16
	fileTypeRoot32
	fileTypeSubdir
)

// File is a handle to an open file or directory on a [Volume]. The zero
// value is a closed handle. Handles share the volume cache: call Sync
// before reading state another handle may have modified.
type File struct {
	vol          *Volume
	clock        Clock
	flags        Mode
	typ          fileType
	dirDirty     bool // Directory entry needs rewriting on Sync.
	unbuffered   bool
	writeErr     bool
	dirIndex     uint8  // Entry index within dirBlock.
	dirBlock     uint32 // Block holding the directory entry, 0 for root.
	curCluster   uint32
	curPosition  uint32
	fileSize     uint32
	firstCluster uint32
}

// Open opens or creates the file name in directory dir. See [Mode] for the
// meaning of each flag. A newly created entry is written to the device
// before Open returns.
func (f *File) Open(dir *File, name string, mode Mode) error {
	if f.IsOpen() {
		return ErrAlreadyOpen
	} else if !dir.IsDir() {
		return ErrNotDir
	}
	dname, err := Make83Name(name)
	if err != nil {
		return err
	}
	vol := dir.vol
	f.vol = vol
	dir.Rewind()

	emptyFound := false
	for dir.curPosition < dir.fileSize {
		index := uint8(dir.curPosition>>5) & 0xF
		p, err := dir.readDirCache()
		if err != nil {
			return err
		}
		if p.IsFree() || p.IsDeleted() {
			if !emptyFound {
				emptyFound = true
				f.dirIndex = index
				f.dirBlock = vol.cache.block
			}
			if p.IsFree() {
				break // No used entries follow.
			}
		} else if p.ShortName() == dname {
			if mode&(ModeCreate|ModeExcl) == ModeCreate|ModeExcl {
				return ErrExist
			}
			return f.openCachedEntry(index, mode)
		}
	}
	if mode&(ModeCreate|ModeWrite) != ModeCreate|ModeWrite {
		return ErrNotExist
	}

	if !emptyFound {
		if dir.typ == fileTypeRoot16 {
			return ErrDirFull
		}
		// addDirCluster leaves the first block of the new cluster cached.
		if err := dir.addDirCluster(); err != nil {
			return err
		}
		f.dirIndex = 0
		f.dirBlock = vol.cache.block
	}
	if err := vol.cache.cacheRawBlock(f.dirBlock, cacheForWrite); err != nil {
		return err
	}
	p := vol.cache.dirEntry(f.dirIndex)
	clear(p.data)
	p.setShortName(dname)
	dt := defaultDatetime
	if now, ok := f.now(); ok {
		dt = newDatetime(now)
	}
	p.setCreated(dt)
	p.setAccessDate(dt.date)
	p.setModified(dt)
	if err := vol.cache.flush(); err != nil {
		return err
	}
	return f.openCachedEntry(f.dirIndex, mode)
}

// openCachedEntry opens the dirIndex'th entry of the cached block.
func (f *File) openCachedEntry(dirIndex uint8, mode Mode) error {
	vol := f.vol
	p := vol.cache.dirEntry(dirIndex)
	if p.Attributes()&(AttrReadOnly|AttrDirectory) != 0 && mode&(ModeWrite|ModeTrunc) != 0 {
		return ErrDenied
	}
	f.dirIndex = dirIndex
	f.dirBlock = vol.cache.block
	firstCluster := p.FirstCluster()
	var typ fileType
	var size uint32
	switch {
	case p.IsFile():
		size = p.Size()
		typ = fileTypeNormal
	case p.IsSubdir():
		var err error
		size, err = vol.chainSize(firstCluster)
		if err != nil {
			return err
		}
		typ = fileTypeSubdir
	default:
		return ErrDenied
	}
	f.firstCluster = firstCluster
	f.fileSize = size
	f.typ = typ
	f.flags = mode & (ModeRW | ModeSync | ModeAppend)
	f.unbuffered = false
	f.dirDirty = false
	f.curCluster = 0
	f.curPosition = 0
	f.writeErr = false
	if mode&ModeTrunc != 0 {
		return f.Truncate(0)
	}
	return nil
}

// OpenRoot opens the root directory of vol for reading.
func (f *File) OpenRoot(vol *Volume) error {
	if f.IsOpen() {
		return ErrAlreadyOpen
	}
	switch vol.fatType {
	case FormatFAT16:
		f.typ = fileTypeRoot16
		f.firstCluster = 0
		f.fileSize = sizeDirEntry * uint32(vol.rootDirEntryCount)
	case FormatFAT32:
		size, err := vol.chainSize(vol.rootDirStart)
		if err != nil {
			return err
		}
		f.typ = fileTypeRoot32
		f.firstCluster = vol.rootDirStart
		f.fileSize = size
	default:
		return ErrNoFilesystem
	}
	f.vol = vol
	f.flags = ModeRead
	f.unbuffered = false
	f.dirDirty = false
	f.writeErr = false
	f.curCluster = 0
	f.curPosition = 0
	f.dirBlock = 0
	f.dirIndex = 0
	return nil
}

// dataBlock returns the device block holding curPosition. When the position
// is at the start of a cluster curCluster advances to it first.
func (f *File) dataBlock() (uint32, error) {
	vol := f.vol
	if f.typ == fileTypeRoot16 {
		return vol.rootDirStart + f.curPosition>>9, nil
	}
	blockOfCluster := vol.blockOfCluster(f.curPosition)
	if f.curPosition&(BlockSize-1) == 0 && blockOfCluster == 0 {
		if f.curPosition == 0 {
			f.curCluster = f.firstCluster
		} else {
			next, err := vol.fatGet(f.curCluster)
			if err != nil {
				return 0, err
			}
			f.curCluster = next
		}
	}
	return vol.clusterStartBlock(f.curCluster) + uint32(blockOfCluster), nil
}

// Read reads up to len(p) bytes from the current position. It implements
// [io.Reader] and returns io.EOF once the position reaches the file size.
// Whole blocks that are not cached, and every chunk in unbuffered mode, are
// read straight from the device.
func (f *File) Read(p []byte) (int, error) {
	if !f.IsOpen() {
		return 0, ErrClosed
	} else if f.flags&ModeRead == 0 {
		return 0, ErrDenied
	} else if len(p) == 0 {
		return 0, nil
	} else if f.curPosition >= f.fileSize {
		return 0, io.EOF
	}
	vol := f.vol
	n := len(p)
	if remain := f.fileSize - f.curPosition; uint64(n) > uint64(remain) {
		n = int(remain)
	}
	done := 0
	for done < n {
		offset := int(f.curPosition & (BlockSize - 1))
		block, err := f.dataBlock()
		if err != nil {
			return done, err
		}
		chunk := min(BlockSize-offset, n-done)
		dst := p[done : done+chunk]
		if (f.unbuffered || chunk == BlockSize) && block != vol.cache.block {
			if chunk == BlockSize {
				err = vol.cache.dev.ReadBlocks(dst, int64(block))
			} else {
				err = vol.cache.dev.ReadPartial(dst, int64(block), offset)
			}
			if err != nil {
				return done, vol.cache.diskErr("read", block, err)
			}
		} else {
			if err := vol.cache.cacheRawBlock(block, cacheForRead); err != nil {
				return done, err
			}
			copy(dst, vol.cache.data[offset:])
		}
		f.curPosition += uint32(chunk)
		done += chunk
	}
	return n, nil
}

// Write writes p at the current position, or at the end of file with
// [ModeAppend], growing the file as needed. It implements [io.Writer].
// On failure it returns 0 and sets the handle's write error flag; blocks
// written before the failure stay on the device.
func (f *File) Write(p []byte) (int, error) {
	if !f.IsFile() || f.flags&ModeWrite == 0 {
		f.writeErr = true
		return 0, ErrDenied
	}
	if err := f.write(p); err != nil {
		f.writeErr = true
		return 0, err
	}
	return len(p), nil
}

func (f *File) write(src []byte) error {
	vol := f.vol
	if f.flags&ModeAppend != 0 && f.curPosition != f.fileSize {
		if err := f.SeekSet(f.fileSize); err != nil {
			return err
		}
	}
	if uint64(f.curPosition)+uint64(len(src)) > math.MaxUint32 {
		return ErrOutOfRange // File size is a 32 bit field.
	}
	nbyte := len(src)
	for len(src) > 0 {
		blockOfCluster := vol.blockOfCluster(f.curPosition)
		offset := int(f.curPosition & (BlockSize - 1))
		if blockOfCluster == 0 && offset == 0 {
			// Start of a cluster: move to it, allocating when needed.
			if f.curCluster == 0 {
				if f.firstCluster == 0 {
					if err := f.addCluster(); err != nil {
						return err
					}
				} else {
					f.curCluster = f.firstCluster
				}
			} else {
				next, err := vol.fatGet(f.curCluster)
				if err != nil {
					return err
				}
				if vol.isEOC(next) {
					if err := f.addCluster(); err != nil {
						return err
					}
				} else {
					f.curCluster = next
				}
			}
		}
		n := min(BlockSize-offset, len(src))
		block := vol.clusterStartBlock(f.curCluster) + uint32(blockOfCluster)
		if n == BlockSize {
			if vol.cache.block == block {
				vol.cache.invalidate()
			}
			if err := vol.cache.dev.WriteBlocks(src[:BlockSize], int64(block)); err != nil {
				return vol.cache.diskErr("write", block, err)
			}
		} else {
			var err error
			if offset == 0 && f.curPosition >= f.fileSize {
				// Nothing to preserve past end of file.
				err = vol.cache.zeroBlock(block)
			} else {
				err = vol.cache.cacheRawBlock(block, cacheForWrite)
			}
			if err != nil {
				return err
			}
			copy(vol.cache.data[offset:], src[:n])
		}
		f.curPosition += uint32(n)
		src = src[n:]
	}

	if f.curPosition > f.fileSize {
		f.fileSize = f.curPosition
		f.dirDirty = true
	} else if f.hasClock() && nbyte > 0 {
		f.dirDirty = true // Refresh the write time.
	}
	if f.flags&ModeSync != 0 {
		return f.Sync()
	}
	return nil
}

// addCluster appends one cluster to the chain and makes it current.
func (f *File) addCluster() error {
	if err := f.vol.allocContiguous(1, &f.curCluster); err != nil {
		return err
	}
	if f.firstCluster == 0 {
		f.firstCluster = f.curCluster
		f.dirDirty = true
	}
	return nil
}

// SeekSet moves the position to pos bytes from the start of the file.
// Positions past the end of file fail with [ErrOutOfRange].
func (f *File) SeekSet(pos uint32) error {
	if !f.IsOpen() {
		return ErrClosed
	} else if pos > f.fileSize {
		return ErrOutOfRange
	}
	if f.typ == fileTypeRoot16 {
		f.curPosition = pos
		return nil
	}
	if pos == 0 {
		f.curCluster = 0
		f.curPosition = 0
		return nil
	}
	shift := f.vol.clusterSizeShift + 9
	nCur := (f.curPosition - 1) >> shift
	nNew := (pos - 1) >> shift
	if nNew < nCur || f.curPosition == 0 {
		f.curCluster = f.firstCluster // Chain can only be walked forward.
	} else {
		nNew -= nCur
	}
	for ; nNew > 0; nNew-- {
		next, err := f.vol.fatGet(f.curCluster)
		if err != nil {
			return err
		}
		f.curCluster = next
	}
	f.curPosition = pos
	return nil
}

// Truncate shrinks the file to length bytes and frees the clusters past it.
// Files can not be grown with Truncate. The position is kept unless it lies
// past the new end of file.
func (f *File) Truncate(length uint32) error {
	if !f.IsFile() || f.flags&ModeWrite == 0 {
		return ErrDenied
	} else if length > f.fileSize {
		return ErrOutOfRange
	} else if f.fileSize == 0 {
		return nil
	}
	newPos := min(f.curPosition, length)
	if err := f.SeekSet(length); err != nil {
		return err
	}
	vol := f.vol
	if length == 0 {
		if err := vol.freeChain(f.firstCluster); err != nil {
			return err
		}
		f.firstCluster = 0
	} else {
		next, err := vol.fatGet(f.curCluster)
		if err != nil {
			return err
		}
		if !vol.isEOC(next) {
			if err := vol.freeChain(next); err != nil {
				return err
			}
			if err := vol.fatPutEOC(f.curCluster); err != nil {
				return err
			}
		}
	}
	f.fileSize = length
	f.dirDirty = true
	if err := f.Sync(); err != nil {
		return err
	}
	return f.SeekSet(newPos)
}

// Sync writes the directory entry if it changed and flushes the volume cache.
func (f *File) Sync() error {
	if !f.IsOpen() {
		return ErrClosed
	}
	if f.dirDirty && !f.IsRoot() {
		d, err := f.cacheDirEntry(cacheForWrite)
		if err != nil {
			return err
		}
		if !f.IsDir() {
			d.setSize(f.fileSize) // Directory size comes from its chain.
		}
		d.setFirstCluster(f.firstCluster)
		if now, ok := f.now(); ok {
			dt := newDatetime(now)
			d.setModified(dt)
			d.setAccessDate(dt.date)
		}
		f.dirDirty = false
	}
	return f.vol.cache.flush()
}

// Close syncs and closes the handle. The handle may be reused afterwards.
func (f *File) Close() error {
	err := f.Sync()
	f.typ = fileTypeClosed
	return err
}

func (f *File) cacheDirEntry(action cacheAction) (DirEntry, error) {
	if err := f.vol.cache.cacheRawBlock(f.dirBlock, action); err != nil {
		return DirEntry{}, err
	}
	return f.vol.cache.dirEntry(f.dirIndex), nil
}

func (f *File) hasClock() bool {
	return f.clock != nil || (f.vol != nil && f.vol.clock != nil)
}

// now returns the handle's time, falling back to the volume clock.
func (f *File) now() (time.Time, bool) {
	clock := f.clock
	if clock == nil && f.vol != nil {
		clock = f.vol.clock
	}
	if clock == nil {
		return time.Time{}, false
	}
	return clock.Now(), true
}
