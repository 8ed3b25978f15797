package sdfat

import (
	"context"
	"log/slog"
)

// badLBA marks an empty cache slot.
const badLBA = ^uint32(0)

type cacheAction uint8

const (
	cacheForRead cacheAction = iota
	cacheForWrite
)

// blockCache is the single block window shared by the FAT, directory and
// file layers. A different block is only brought in after the dirty one is
// written back.
type blockCache struct {
	dev    BlockDevice
	log    *slog.Logger
	block  uint32 // Block currently held in data, badLBA if none.
	mirror uint32 // Second FAT copy of block, written on flush when nonzero.
	dirty  bool
	data   [BlockSize]byte
}

func (c *blockCache) reset(dev BlockDevice) {
	c.dev = dev
	c.block = badLBA
	c.mirror = 0
	c.dirty = false
}

// cacheRawBlock makes block the cached block, flushing the previous one if
// needed. cacheForWrite marks the slot dirty.
func (c *blockCache) cacheRawBlock(block uint32, action cacheAction) error {
	if c.block != block {
		if err := c.flush(); err != nil {
			return err
		}
		if err := c.dev.ReadBlocks(c.data[:], int64(block)); err != nil {
			c.block = badLBA // Contents no longer match any block.
			return c.diskErr("read", block, err)
		}
		c.block = block
	}
	if action == cacheForWrite {
		c.dirty = true
	}
	return nil
}

// flush writes the cached block back if dirty, along with its FAT mirror.
func (c *blockCache) flush() error {
	if !c.dirty {
		return nil
	}
	if err := c.dev.WriteBlocks(c.data[:], int64(c.block)); err != nil {
		return c.diskErr("write", c.block, err)
	}
	if c.mirror != 0 {
		if err := c.dev.WriteBlocks(c.data[:], int64(c.mirror)); err != nil {
			return c.diskErr("write", c.mirror, err)
		}
		c.mirror = 0
	}
	c.dirty = false
	return nil
}

func (c *blockCache) setDirty() { c.dirty = true }

// zeroBlock flushes the slot and adopts block with zeroed contents without
// reading it from the device.
func (c *blockCache) zeroBlock(block uint32) error {
	if err := c.flush(); err != nil {
		return err
	}
	clear(c.data[:])
	c.block = block
	c.dirty = true
	return nil
}

// invalidate drops the slot without writing it back.
func (c *blockCache) invalidate() {
	c.block = badLBA
	c.mirror = 0
	c.dirty = false
}

// dirEntry returns a view of the idx'th directory entry of the cached block.
func (c *blockCache) dirEntry(idx uint8) DirEntry {
	off := int(idx&0xF) * sizeDirEntry
	return DirEntry{data: c.data[off : off+sizeDirEntry : off+sizeDirEntry]}
}

func (c *blockCache) diskErr(op string, block uint32, err error) error {
	if c.log != nil {
		c.log.LogAttrs(context.Background(), slog.LevelError, "cache:"+op,
			slog.Uint64("block", uint64(block)), slog.String("err", err.Error()))
	}
	return &DiskError{Op: op, Block: block, Err: err}
}
