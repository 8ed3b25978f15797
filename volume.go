package sdfat

import (
	"encoding/binary"
	"log/slog"
	"math/bits"

	"github.com/soypat/sdfat/internal/mbr"
)

const (
	mask28bits = 0x0FFF_FFFF
	eocFAT16   = 0xFFF8
	eocFAT32   = 0x0FFF_FFF8
	eocMark    = 0x0FFF_FFFF

	clustMaxFAT12 = 4084
	clustMaxFAT16 = 65524
)

// geometry is the layout of a mounted volume. It is computed in full before
// being stored so a failed mount never leaves partial values behind.
type geometry struct {
	fatType           Format
	blocksPerCluster  uint8
	clusterSizeShift  uint8 // log2(blocksPerCluster)
	fatCount          uint8
	rootDirEntryCount uint16 // FAT16 only.
	fatStartBlock     uint32
	blocksPerFat      uint32
	rootDirStart      uint32 // Block on FAT16, cluster on FAT32.
	dataStartBlock    uint32
	clusterCount      uint32
	volumeStart       uint32 // Boot sector block.
	fsInfoBlock       uint32 // FAT32 only, 0 when absent.
}

// Volume is a mounted FAT16 or FAT32 volume. The zero value is unmounted;
// call Init or InitTryBoth before use.
type Volume struct {
	geometry
	cache            blockCache
	log              *slog.Logger
	clock            Clock
	allocSearchStart uint32 // Hint for the next free cluster search.
	fatChanged       bool   // FAT written since mount, FS information is stale.
}

// SetLogger sets the logger used for mount and allocation events. A nil
// logger disables logging.
func (v *Volume) SetLogger(log *slog.Logger) {
	v.log = log
	v.cache.log = log
}

// SetClock sets the default time source for new and modified directory
// entries. Handles may override it with [File.SetClock]. With no clock,
// created entries get 2000-01-01 01:00:00 and writes leave timestamps alone.
func (v *Volume) SetClock(clock Clock) { v.clock = clock }

// InitTryBoth mounts the first MBR partition and falls back to a
// superfloppy layout with the boot sector at block 0.
func (v *Volume) InitTryBoth(dev BlockDevice) error {
	err := v.Init(dev, 1)
	if err == nil {
		return nil
	}
	v.debug("vol:init-try-both", slog.String("partition1", err.Error()))
	return v.Init(dev, 0)
}

// Init mounts the volume found on dev. part selects an MBR partition 1..4;
// part 0 means the device has no partition table.
func (v *Volume) Init(dev BlockDevice, part uint8) error {
	if dev == nil || part > 4 {
		return ErrInvalidParameter
	}
	v.geometry = geometry{} // Invalidate any previous mount.
	v.cache.reset(dev)
	v.cache.log = v.log

	var volumeStart uint32
	if part != 0 {
		if err := v.cache.cacheRawBlock(0, cacheForRead); err != nil {
			return err
		}
		bs, err := mbr.ToBootSector(v.cache.data[:])
		if err != nil {
			return ErrNoFilesystem
		}
		pte := bs.PartitionTable(int(part - 1))
		if !pte.Usable() {
			v.debug("vol:bad-partition", slog.Int("part", int(part)),
				slog.Uint64("start", uint64(pte.StartLBA())), slog.Uint64("size", uint64(pte.NumberOfLBA())))
			return ErrNoFilesystem
		}
		volumeStart = pte.StartLBA()
	}
	if err := v.cache.cacheRawBlock(volumeStart, cacheForRead); err != nil {
		return err
	}
	bpb := biosParamBlock{data: v.cache.data[:]}
	geo, err := parseGeometry(&bpb, volumeStart)
	if err != nil {
		return err
	}
	v.geometry = geo
	v.allocSearchStart = 2
	v.fatChanged = false
	v.info("vol:mount", slog.Int("fat", int(geo.fatType.Bits())),
		slog.Uint64("start", uint64(volumeStart)),
		slog.Uint64("clusters", uint64(geo.clusterCount)),
		slog.Int("blocksPerCluster", int(geo.blocksPerCluster)))
	return nil
}

func parseGeometry(bpb *biosParamBlock, volumeStart uint32) (geo geometry, err error) {
	if bpb.SectorSize() != BlockSize || bpb.NumberOfFATs() == 0 ||
		bpb.ReservedSectors() == 0 || bpb.SectorsPerCluster() == 0 {
		return geo, ErrNoFilesystem
	}
	spc := bpb.SectorsPerCluster()
	if spc&(spc-1) != 0 {
		return geo, ErrNoFilesystem // Not a power of two.
	}
	geo.volumeStart = volumeStart
	geo.blocksPerCluster = spc
	geo.clusterSizeShift = uint8(bits.TrailingZeros8(spc))
	geo.fatCount = bpb.NumberOfFATs()
	geo.blocksPerFat = bpb.SectorsPerFAT()
	geo.rootDirEntryCount = bpb.RootDirEntries()
	geo.fatStartBlock = volumeStart + uint32(bpb.ReservedSectors())
	geo.rootDirStart = geo.fatStartBlock + uint32(geo.fatCount)*geo.blocksPerFat
	geo.dataStartBlock = geo.rootDirStart + (32*uint32(geo.rootDirEntryCount)+BlockSize-1)/BlockSize

	totalBlocks := bpb.TotalSectors()
	used := geo.dataStartBlock - volumeStart
	if totalBlocks <= used {
		return geometry{}, ErrNoFilesystem
	}
	geo.clusterCount = (totalBlocks - used) >> geo.clusterSizeShift
	switch {
	case geo.clusterCount <= clustMaxFAT12:
		return geometry{}, ErrUnsupported
	case geo.clusterCount <= clustMaxFAT16:
		geo.fatType = FormatFAT16
	default:
		geo.fatType = FormatFAT32
		geo.rootDirStart = bpb.RootCluster()
		if fsi := bpb.FSInfo(); fsi != 0 {
			geo.fsInfoBlock = volumeStart + uint32(fsi)
		}
	}
	return geo, nil
}

// Format returns the FAT type of the mounted volume, or 0 when unmounted.
func (v *Volume) Format() Format { return v.fatType }

// ClusterCount returns the number of data clusters.
func (v *Volume) ClusterCount() uint32 { return v.clusterCount }

// BlocksPerCluster returns the cluster size in blocks.
func (v *Volume) BlocksPerCluster() uint8 { return v.blocksPerCluster }

// ClusterSize returns the cluster size in bytes.
func (v *Volume) ClusterSize() uint32 { return BlockSize << v.clusterSizeShift }

// BlocksPerFAT returns the size of one FAT in blocks.
func (v *Volume) BlocksPerFAT() uint32 { return v.blocksPerFat }

// FATCount returns the number of FAT copies.
func (v *Volume) FATCount() uint8 { return v.fatCount }

// FATStartBlock returns the first block of the first FAT.
func (v *Volume) FATStartBlock() uint32 { return v.fatStartBlock }

// RootDirStart returns the first block of a FAT16 root directory or the
// first cluster of a FAT32 one.
func (v *Volume) RootDirStart() uint32 { return v.rootDirStart }

// RootDirEntryCount returns the fixed root directory size of FAT16 volumes.
func (v *Volume) RootDirEntryCount() uint16 { return v.rootDirEntryCount }

// DataStartBlock returns the block of cluster 2.
func (v *Volume) DataStartBlock() uint32 { return v.dataStartBlock }

// Flush writes the cache back to the device.
func (v *Volume) Flush() error { return v.cache.flush() }

// AppendBootSector appends a dump of the boot sector fields to dst, one
// "Name:value" pair per line.
func (v *Volume) AppendBootSector(dst []byte) ([]byte, error) {
	if v.fatType == 0 {
		return dst, ErrNoFilesystem
	}
	if err := v.cache.cacheRawBlock(v.volumeStart, cacheForRead); err != nil {
		return dst, err
	}
	bpb := biosParamBlock{data: v.cache.data[:]}
	return bpb.Appendf(dst, '\n'), nil
}

// updateFSInfo stores the free cluster count and allocation hint in the
// FAT32 FS information sector if the FAT changed since mount. A sector
// without valid signatures is left alone.
func (v *Volume) updateFSInfo() error {
	if v.fsInfoBlock == 0 || !v.fatChanged {
		return nil
	}
	free, err := v.FreeClusters()
	if err != nil {
		return err
	}
	if err := v.cache.cacheRawBlock(v.fsInfoBlock, cacheForRead); err != nil {
		return err
	}
	fsi := fsinfoSector{data: v.cache.data[:]}
	if fsi.Valid() {
		fsi.SetFreeClusterCount(free)
		if v.allocSearchStart > 2 {
			fsi.SetLastAllocatedCluster(v.allocSearchStart - 1)
		}
		v.cache.setDirty()
		v.debug("vol:fsinfo", slog.Uint64("free", uint64(free)))
	}
	v.fatChanged = false
	return nil
}

// FreeClusters scans the FAT and counts unused clusters.
func (v *Volume) FreeClusters() (uint32, error) {
	var free uint32
	for c := uint32(2); c < v.clusterCount+2; c++ {
		val, err := v.fatGet(c)
		if err != nil {
			return 0, err
		}
		if val == 0 {
			free++
		}
	}
	return free, nil
}

// blockOfCluster returns the block index within its cluster of byte pos.
func (v *Volume) blockOfCluster(pos uint32) uint8 {
	return uint8(pos>>9) & (v.blocksPerCluster - 1)
}

// clusterStartBlock returns the first device block of cluster.
func (v *Volume) clusterStartBlock(cluster uint32) uint32 {
	return v.dataStartBlock + (cluster-2)<<v.clusterSizeShift
}

func (v *Volume) isEOC(cluster uint32) bool {
	if v.fatType == FormatFAT16 {
		return cluster >= eocFAT16
	}
	return cluster >= eocFAT32
}

// fatBlock returns the FAT block holding the entry of cluster and the byte
// offset of the entry within it.
func (v *Volume) fatBlock(cluster uint32) (block uint32, off int) {
	if v.fatType == FormatFAT16 {
		return v.fatStartBlock + cluster>>8, int(cluster&0xFF) << 1
	}
	return v.fatStartBlock + cluster>>7, int(cluster&0x7F) << 2
}

// fatGet returns the FAT entry of cluster: the next cluster in its chain, an
// end of chain mark or 0 for a free cluster.
func (v *Volume) fatGet(cluster uint32) (uint32, error) {
	if cluster > v.clusterCount+1 {
		return 0, ErrOutOfRange
	}
	block, off := v.fatBlock(cluster)
	if err := v.cache.cacheRawBlock(block, cacheForRead); err != nil {
		return 0, err
	}
	if v.fatType == FormatFAT16 {
		return uint32(binary.LittleEndian.Uint16(v.cache.data[off:])), nil
	}
	return binary.LittleEndian.Uint32(v.cache.data[off:]) & mask28bits, nil
}

// fatPut stores value in the FAT entry of cluster. With two FATs the cache
// mirror is armed so the next flush updates both copies.
func (v *Volume) fatPut(cluster, value uint32) error {
	if cluster < 2 || cluster > v.clusterCount+1 {
		return ErrOutOfRange
	}
	block, off := v.fatBlock(cluster)
	if err := v.cache.cacheRawBlock(block, cacheForWrite); err != nil {
		return err
	}
	if v.fatType == FormatFAT16 {
		binary.LittleEndian.PutUint16(v.cache.data[off:], uint16(value))
	} else {
		// Upper 4 bits are reserved and must be preserved.
		old := binary.LittleEndian.Uint32(v.cache.data[off:])
		binary.LittleEndian.PutUint32(v.cache.data[off:], value&mask28bits|old&^mask28bits)
	}
	if v.fatCount > 1 {
		v.cache.mirror = block + v.blocksPerFat
	}
	v.fatChanged = true
	return nil
}

func (v *Volume) fatPutEOC(cluster uint32) error {
	return v.fatPut(cluster, eocMark)
}

// allocContiguous allocates count free clusters in a single run. When
// *curCluster is nonzero the run is linked after it and the search starts
// right after it, otherwise the search starts at the allocation hint.
// On success *curCluster holds the first cluster of the run.
func (v *Volume) allocContiguous(count uint32, curCluster *uint32) error {
	var bgnCluster uint32
	setStart := false
	if *curCluster != 0 {
		bgnCluster = *curCluster + 1
	} else {
		bgnCluster = v.allocSearchStart
		// Only advance the hint for single cluster allocations, a failed
		// multi cluster search must not skip free clusters.
		setStart = count == 1
	}
	endCluster := bgnCluster
	fatEnd := v.clusterCount + 1
	for n := uint32(0); ; n, endCluster = n+1, endCluster+1 {
		if n >= v.clusterCount {
			v.debug("vol:alloc-exhausted", slog.Uint64("count", uint64(count)))
			return ErrNoSpace
		}
		if endCluster > fatEnd {
			bgnCluster, endCluster = 2, 2 // Wrap around.
		}
		f, err := v.fatGet(endCluster)
		if err != nil {
			return err
		}
		if f != 0 {
			bgnCluster = endCluster + 1 // Cluster in use, restart run.
		} else if endCluster-bgnCluster+1 == count {
			break
		}
	}
	if err := v.fatPutEOC(endCluster); err != nil {
		return err
	}
	// Link the run backwards from its tail.
	for endCluster > bgnCluster {
		if err := v.fatPut(endCluster-1, endCluster); err != nil {
			return err
		}
		endCluster--
	}
	if *curCluster != 0 {
		if err := v.fatPut(*curCluster, bgnCluster); err != nil {
			return err
		}
	}
	*curCluster = bgnCluster
	if setStart {
		v.allocSearchStart = bgnCluster + 1
	}
	v.debug("vol:alloc", slog.Uint64("cluster", uint64(bgnCluster)), slog.Uint64("count", uint64(count)))
	return nil
}

// chainSize returns the size in bytes of the chain starting at cluster. A
// chain running into a free or reserved entry fails with ErrOutOfRange.
func (v *Volume) chainSize(cluster uint32) (uint32, error) {
	var size uint32
	for {
		if cluster < 2 {
			return 0, ErrOutOfRange
		}
		next, err := v.fatGet(cluster)
		if err != nil {
			return 0, err
		}
		size += BlockSize << v.clusterSizeShift
		cluster = next
		if v.isEOC(cluster) {
			return size, nil
		}
	}
}

// freeChain marks every cluster of the chain starting at cluster as free.
func (v *Volume) freeChain(cluster uint32) error {
	v.allocSearchStart = 2 // Rescan from the start on next allocation.
	start := cluster
	for {
		next, err := v.fatGet(cluster)
		if err != nil {
			return err
		}
		if err := v.fatPut(cluster, 0); err != nil {
			return err
		}
		cluster = next
		if v.isEOC(cluster) {
			v.debug("vol:free-chain", slog.Uint64("start", uint64(start)))
			return nil
		}
	}
}
