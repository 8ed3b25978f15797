package sdfat

import (
	"encoding/binary"
	"log/slog"
	"strconv"
	"time"

	"github.com/soypat/sdfat/internal/mbr"
)

// Format is a FAT variant.
type Format uint8

const (
	formatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
)

// Bits returns the width of a FAT entry, 0 for an unknown format.
func (f Format) Bits() uint8 {
	switch f {
	case FormatFAT12:
		return 12
	case FormatFAT16:
		return 16
	case FormatFAT32:
		return 32
	}
	return 0
}

func (f Format) String() string {
	if f.Bits() == 0 {
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
	return "FAT" + strconv.Itoa(int(f.Bits()))
}

const (
	fat16RootEntries     = 512
	fat16Reserved        = 1
	fat32Reserved        = 32
	fat32FSInfo          = 1
	fat32BackupBoot      = 6
	defaultPartitionLBA  = 63
	chsLimitBlocks       = 1024 * 255 * 63
	fat32DefaultMinBlock = 1 << 20 // 512MiB, smaller volumes default to FAT16.
)

// FormatConfig controls the layout written by [Formatter.Format].
type FormatConfig struct {
	// Label is the volume label stored in the boot sector. Defaults to "NO NAME".
	Label string
	// OEMName is stored at offset 3 of the boot sector. Defaults to "SDFAT".
	OEMName string
	// ClusterSize is the size of a FAT cluster in blocks. Must be a power of
	// two up to 128. 0 picks a size from the volume size.
	ClusterSize uint8
	// Format selects FAT16 or FAT32. 0 picks FAT32 for volumes of 512MiB and
	// larger.
	Format Format
	// Partitioned writes an MBR with a single partition holding the volume.
	Partitioned bool
	// PartitionStart is the first block of the partition. Defaults to 63.
	PartitionStart uint32
	// Serial is the volume serial number. 0 derives one from the current time.
	Serial uint32
}

// Formatter writes an empty FAT16 or FAT32 volume to a block device. The
// zero value is ready to use.
type Formatter struct {
	buf [BlockSize]byte
	bd  BlockDevice
	log *slog.Logger
}

// SetLogger sets the logger used to report the computed layout.
func (f *Formatter) SetLogger(log *slog.Logger) { f.log = log }

// layout is the geometry computed by the formatter.
type layout struct {
	format       Format
	volumeStart  uint32
	volumeBlocks uint32
	spc          uint8
	reserved     uint16
	rootEntries  uint16
	fatBlocks    uint32
	clusters     uint32
}

func (l *layout) rootBlocks() uint32 {
	return (sizeDirEntry*uint32(l.rootEntries) + BlockSize - 1) / BlockSize
}

func (l *layout) fatStart() uint32 { return l.volumeStart + uint32(l.reserved) }

func (l *layout) dataStart() uint32 {
	return l.fatStart() + 2*l.fatBlocks + l.rootBlocks()
}

// Format writes an empty volume spanning numBlocks blocks of bd. Existing
// data in the reserved area, the FATs and the root directory is destroyed.
func (f *Formatter) Format(bd BlockDevice, numBlocks uint32, cfg FormatConfig) error {
	if bd == nil {
		return ErrInvalidParameter
	}
	l, err := computeLayout(numBlocks, &cfg)
	if err != nil {
		return err
	}
	f.bd = bd
	defer func() { f.bd = nil }()
	if cfg.Partitioned {
		if err := f.writeMBR(l); err != nil {
			return err
		}
	}
	if err := f.writeBootSectors(l, &cfg); err != nil {
		return err
	}
	if err := f.writeFATs(l); err != nil {
		return err
	}
	if err := f.writeRootDir(l); err != nil {
		return err
	}
	if f.log != nil {
		f.log.Info("format:done", slog.String("fat", l.format.String()),
			slog.Uint64("start", uint64(l.volumeStart)),
			slog.Uint64("blocks", uint64(l.volumeBlocks)),
			slog.Uint64("clusters", uint64(l.clusters)),
			slog.Uint64("fatBlocks", uint64(l.fatBlocks)),
			slog.Int("blocksPerCluster", int(l.spc)))
	}
	return nil
}

func computeLayout(numBlocks uint32, cfg *FormatConfig) (l layout, err error) {
	if cfg.Partitioned {
		l.volumeStart = cfg.PartitionStart
		if l.volumeStart == 0 {
			l.volumeStart = defaultPartitionLBA
		}
	}
	if numBlocks <= l.volumeStart {
		return l, ErrOutOfRange
	}
	l.volumeBlocks = numBlocks - l.volumeStart
	l.format = cfg.Format
	if l.format == formatUnknown {
		l.format = FormatFAT16
		if l.volumeBlocks >= fat32DefaultMinBlock {
			l.format = FormatFAT32
		}
	}
	var entrySize uint32
	switch l.format {
	case FormatFAT16:
		l.reserved = fat16Reserved
		l.rootEntries = fat16RootEntries
		entrySize = 2
	case FormatFAT32:
		l.reserved = fat32Reserved
		entrySize = 4
	default:
		return l, ErrUnsupported
	}
	l.spc = cfg.ClusterSize
	if l.spc == 0 {
		l.spc = defaultClusterSize(l.format, l.volumeBlocks)
	}
	if l.spc&(l.spc-1) != 0 {
		return l, ErrInvalidParameter
	}

	overhead := uint32(l.reserved) + l.rootBlocks()
	if l.volumeBlocks <= overhead+2 {
		return l, ErrOutOfRange
	}
	// Grow the FAT until it covers every cluster left after it.
	l.fatBlocks = 1
	for {
		if l.volumeBlocks <= overhead+2*l.fatBlocks {
			return l, ErrOutOfRange
		}
		l.clusters = (l.volumeBlocks - overhead - 2*l.fatBlocks) / uint32(l.spc)
		need := ((l.clusters+2)*entrySize + BlockSize - 1) / BlockSize
		if need <= l.fatBlocks {
			break
		}
		l.fatBlocks = need
	}
	switch {
	case l.format == FormatFAT16 && (l.clusters <= clustMaxFAT12 || l.clusters > clustMaxFAT16):
		return l, ErrOutOfRange
	case l.format == FormatFAT32 && (l.clusters <= clustMaxFAT16 || l.clusters > mask28bits-10):
		return l, ErrOutOfRange
	}
	return l, nil
}

// defaultClusterSize follows the usual SD card cluster sizes.
func defaultClusterSize(format Format, blocks uint32) uint8 {
	if format == FormatFAT16 {
		spc := uint8(1)
		for blocks/uint32(spc) > clustMaxFAT16 && spc < 128 {
			spc <<= 1
		}
		return spc
	}
	switch {
	case blocks <= 16<<20: // 8GiB
		return 8
	case blocks <= 32<<20:
		return 16
	case blocks <= 64<<20:
		return 32
	}
	return 64
}

// writeZeros writes count zeroed blocks starting at block.
func (f *Formatter) writeZeros(block, count uint32) error {
	clear(f.buf[:])
	for i := uint32(0); i < count; i++ {
		if err := f.write(block + i); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) write(block uint32) error {
	if err := f.bd.WriteBlocks(f.buf[:], int64(block)); err != nil {
		return &DiskError{Op: "write", Block: block, Err: err}
	}
	return nil
}

func (f *Formatter) writeMBR(l layout) error {
	clear(f.buf[:])
	bs, err := mbr.ToBootSector(f.buf[:])
	if err != nil {
		return err
	}
	end := l.volumeStart + l.volumeBlocks
	ptype := mbr.PartitionTypeFAT32LBA
	if l.format == FormatFAT16 {
		ptype = mbr.PartitionTypeFAT16
		if end > chsLimitBlocks {
			ptype = mbr.PartitionTypeFAT16LBA
		}
	}
	bs.SetPartitionTable(0, mbr.MakePTE(0, ptype, l.volumeStart, l.volumeBlocks))
	bs.SetBootSignature()
	if err := f.write(0); err != nil {
		return err
	}
	// Blocks between the MBR and the volume.
	return f.writeZeros(1, l.volumeStart-1)
}

func (f *Formatter) writeBootSectors(l layout, cfg *FormatConfig) error {
	clear(f.buf[:])
	bpb := biosParamBlock{data: f.buf[:]}
	oem := cfg.OEMName
	if oem == "" {
		oem = "SDFAT"
	}
	label := cfg.Label
	if label == "" {
		label = "NO NAME"
	}
	serial := cfg.Serial
	if serial == 0 {
		serial = uint32(time.Now().Unix())
	}
	bpb.SetOEMName(oem)
	bpb.SetSectorSize(BlockSize)
	bpb.SetSectorsPerCluster(l.spc)
	bpb.SetReservedSectors(l.reserved)
	bpb.SetNumberOfFATs(2)
	bpb.SetRootDirEntries(l.rootEntries)
	bpb.SetTotalSectors(l.volumeBlocks)
	bpb.SetMedia(0xF8)
	bpb.SetGeometry(63, 255)
	bpb.SetVolumeOffset(l.volumeStart)
	if l.format == FormatFAT16 {
		bpb.SetJumpInstruction([3]byte{0xEB, 0x3C, 0x90})
		bpb.SetSectorsPerFAT16(uint16(l.fatBlocks))
		bpb.SetExtended(0x80, serial, label, "FAT16")
	} else {
		bpb.SetJumpInstruction([3]byte{0xEB, 0x58, 0x90})
		bpb.SetSectorsPerFAT32(l.fatBlocks)
		bpb.SetFAT32Layout(2, fat32FSInfo, fat32BackupBoot)
		bpb.SetExtended(0x80, serial, label, "FAT32")
	}
	bpb.SetBootSignature()

	// Reserved area first so the boot sector is the last thing missing on
	// an interrupted format.
	if l.reserved > 1 {
		saved := f.buf
		if err := f.writeZeros(l.volumeStart+1, uint32(l.reserved)-1); err != nil {
			return err
		}
		f.buf = saved
	}
	if l.format == FormatFAT32 {
		if err := f.write(l.volumeStart + fat32BackupBoot); err != nil {
			return err
		}
		boot := f.buf
		if err := f.writeFSInfo(l); err != nil {
			return err
		}
		f.buf = boot
	}
	return f.write(l.volumeStart)
}

func (f *Formatter) writeFSInfo(l layout) error {
	clear(f.buf[:])
	fsi := fsinfoSector{data: f.buf[:]}
	fsi.SetSignatures()
	fsi.SetFreeClusterCount(l.clusters - 1) // Root directory cluster.
	fsi.SetLastAllocatedCluster(2)
	if err := f.write(l.volumeStart + fat32FSInfo); err != nil {
		return err
	}
	return f.write(l.volumeStart + fat32BackupBoot + fat32FSInfo)
}

func (f *Formatter) writeFATs(l layout) error {
	for i := uint32(0); i < 2; i++ {
		start := l.fatStart() + i*l.fatBlocks
		if err := f.writeZeros(start+1, l.fatBlocks-1); err != nil {
			return err
		}
		clear(f.buf[:])
		if l.format == FormatFAT16 {
			binary.LittleEndian.PutUint16(f.buf[0:], 0xFFF8)
			binary.LittleEndian.PutUint16(f.buf[2:], 0xFFFF)
		} else {
			binary.LittleEndian.PutUint32(f.buf[0:], 0x0FFFFFF8)
			binary.LittleEndian.PutUint32(f.buf[4:], 0xFFFFFFFF)
			binary.LittleEndian.PutUint32(f.buf[8:], eocMark) // Root directory.
		}
		if err := f.write(start); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) writeRootDir(l layout) error {
	if l.format == FormatFAT16 {
		return f.writeZeros(l.fatStart()+2*l.fatBlocks, l.rootBlocks())
	}
	return f.writeZeros(l.dataStart(), uint32(l.spc))
}
