package sdfat

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/soypat/sdfat/blockdev"
)

func TestCacheReadFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	dev := NewMockBlockDevice(mockCtrl)
	gomock.InOrder(
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(3)).Return(nil),
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(7)).Return(blockdev.ErrReadTimeout),
		// The failed read leaves no block cached, so 3 is read again.
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(3)).Return(nil),
	)

	var c blockCache
	c.reset(dev)
	if err := c.cacheRawBlock(3, cacheForRead); err != nil {
		t.Fatal(err)
	}
	err := c.cacheRawBlock(7, cacheForRead)
	if !errors.Is(err, ErrDisk) || !errors.Is(err, blockdev.ErrReadTimeout) {
		t.Fatalf("got %v, want wrapped read timeout", err)
	}
	if c.block != badLBA {
		t.Errorf("failed read left block %d cached", c.block)
	}
	if err := c.cacheRawBlock(3, cacheForRead); err != nil {
		t.Fatal(err)
	}
}

func TestCacheFlushMirror(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	dev := NewMockBlockDevice(mockCtrl)
	gomock.InOrder(
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(5)).Return(nil),
		dev.EXPECT().WriteBlocks(gomock.Any(), int64(5)).Return(nil),
		dev.EXPECT().WriteBlocks(gomock.Any(), int64(25)).Return(nil),
	)

	var c blockCache
	c.reset(dev)
	if err := c.cacheRawBlock(5, cacheForWrite); err != nil {
		t.Fatal(err)
	}
	c.mirror = 25
	if err := c.flush(); err != nil {
		t.Fatal(err)
	}
	if c.dirty || c.mirror != 0 {
		t.Errorf("after flush: dirty=%v mirror=%d", c.dirty, c.mirror)
	}
	// Clean slot, nothing to write.
	if err := c.flush(); err != nil {
		t.Fatal(err)
	}
}

func TestCacheMirrorWriteFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	dev := NewMockBlockDevice(mockCtrl)
	gomock.InOrder(
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(5)).Return(nil),
		dev.EXPECT().WriteBlocks(gomock.Any(), int64(5)).Return(nil),
		dev.EXPECT().WriteBlocks(gomock.Any(), int64(25)).Return(blockdev.ErrWrite),
	)

	var c blockCache
	c.reset(dev)
	if err := c.cacheRawBlock(5, cacheForWrite); err != nil {
		t.Fatal(err)
	}
	c.mirror = 25
	err := c.flush()
	var diskErr *DiskError
	if !errors.As(err, &diskErr) || diskErr.Block != 25 {
		t.Fatalf("got %v, want write error on block 25", err)
	}
	if !c.dirty {
		t.Error("failed flush marked slot clean")
	}
}

func TestCacheInvalidate(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	dev := NewMockBlockDevice(mockCtrl)
	dev.EXPECT().ReadBlocks(gomock.Any(), int64(5)).Return(nil).Times(2)

	var c blockCache
	c.reset(dev)
	if err := c.cacheRawBlock(5, cacheForWrite); err != nil {
		t.Fatal(err)
	}
	c.mirror = 25
	c.invalidate()
	// No writes are expected.
	if err := c.flush(); err != nil {
		t.Fatal(err)
	}
	if err := c.cacheRawBlock(5, cacheForRead); err != nil {
		t.Fatal(err)
	}
}

func TestCacheZeroBlock(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	dev := NewMockBlockDevice(mockCtrl)
	gomock.InOrder(
		dev.EXPECT().ReadBlocks(gomock.Any(), int64(5)).Return(nil),
		dev.EXPECT().WriteBlocks(gomock.Any(), int64(5)).Return(nil),
	)

	var c blockCache
	c.reset(dev)
	if err := c.cacheRawBlock(5, cacheForWrite); err != nil {
		t.Fatal(err)
	}
	c.data[0] = 0xAB
	// Block 9 is adopted without being read.
	if err := c.zeroBlock(9); err != nil {
		t.Fatal(err)
	}
	if c.block != 9 || !c.dirty || c.data[0] != 0 {
		t.Errorf("block=%d dirty=%v data[0]=%#x", c.block, c.dirty, c.data[0])
	}
}
