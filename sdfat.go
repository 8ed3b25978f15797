/*
Package sdfat implements a FAT16/FAT32 filesystem on top of a 512 byte block
device such as an SD card.

All disk access goes through a single 512 byte write-back cache owned by the
[Volume]. Files and directories are accessed through [File] handles which
share that cache, so a Volume and every handle opened on it must be used from
a single goroutine. [FS] wraps a Volume and its root directory with a path
based API.
*/
package sdfat

import (
	"context"
	"log/slog"
	"time"
)

// BlockSize is the only block size supported by the filesystem.
const BlockSize = 512

// BlockDevice is the storage the filesystem is mounted on. Blocks are
// always BlockSize bytes long.
type BlockDevice interface {
	// ReadBlocks reads len(dst)/BlockSize blocks starting at startBlock.
	ReadBlocks(dst []byte, startBlock int64) error
	// WriteBlocks writes len(data)/BlockSize blocks starting at startBlock.
	WriteBlocks(data []byte, startBlock int64) error
	// ReadPartial reads len(dst) bytes starting at byte offset within block.
	// offset+len(dst) must not exceed BlockSize.
	ReadPartial(dst []byte, block int64, offset int) error
}

// Clock supplies the time used to stamp directory entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls fn.
func (fn ClockFunc) Now() time.Time { return fn() }

func (v *Volume) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if v.log != nil {
		v.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func (v *Volume) debug(msg string, attrs ...slog.Attr) {
	v.logattrs(slog.LevelDebug, msg, attrs...)
}

func (v *Volume) info(msg string, attrs ...slog.Attr) {
	v.logattrs(slog.LevelInfo, msg, attrs...)
}

func (v *Volume) logerror(msg string, attrs ...slog.Attr) {
	v.logattrs(slog.LevelError, msg, attrs...)
}
