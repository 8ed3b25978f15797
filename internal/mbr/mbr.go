/*
package mbr reads and writes the Master Boot Record partition table found in
the first block of partitioned SD cards.
*/
package mbr

import (
	"encoding/binary"
	"errors"
)

const (
	bootstrapLen     = 440
	uniqueDiskIDOff  = bootstrapLen
	uniqueDiskIDLen  = 4
	reservedLen      = 2
	pteOffset        = bootstrapLen + uniqueDiskIDLen + reservedLen
	pteLen           = 16 // partition table entry length
	bootSignatureOff = 510
	BootSignature    = 0xAA55

	// NumPartitions is the number of primary partition table entries.
	NumPartitions = 4
	// minPartitionBlocks is the smallest partition considered to hold a volume.
	minPartitionBlocks = 100
)

var errShortSector = errors.New("mbr: boot sector too short")

// ToBootSector converts a byte slice to an MBR BootSector while maintaining a
// reference to the original byte slice, so setters modify it in place.
// The slice must be at least 512 bytes long.
func ToBootSector(start []byte) (BootSector, error) {
	if len(start) < 512 {
		return BootSector{}, errShortSector
	}
	return BootSector{data: start[:512:512]}, nil
}

// BootSector is a Master Boot Record. It contains the bootstrap code, the partition table and a boot signature.
type BootSector struct {
	data []byte
}

// PartitionTableEntry represents one of the four partition table entries in the MBR.
// See https://en.wikipedia.org/wiki/Master_boot_record#PTE for more information.
type PartitionTableEntry struct {
	data [pteLen]byte
}

// Bootstrap returns bytes 0..439 of the MBR containing the binary executable code.
func (mbr *BootSector) Bootstrap() []byte {
	return mbr.data[0:bootstrapLen]
}

// UniqueDiskID returns the optional disk signature.
func (mbr *BootSector) UniqueDiskID() uint32 {
	return binary.LittleEndian.Uint32(mbr.data[uniqueDiskIDOff : uniqueDiskIDOff+uniqueDiskIDLen])
}

// SetUniqueDiskID sets the disk signature.
func (mbr *BootSector) SetUniqueDiskID(id uint32) {
	binary.LittleEndian.PutUint32(mbr.data[uniqueDiskIDOff:], id)
}

// BootSignature returns the boot signature of the MBR. A valid MBR holds 0xAA55.
func (mbr *BootSector) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(mbr.data[bootSignatureOff : bootSignatureOff+2])
}

// SetBootSignature writes the 0x55 0xAA signature.
func (mbr *BootSector) SetBootSignature() {
	binary.LittleEndian.PutUint16(mbr.data[bootSignatureOff:], BootSignature)
}

// PartitionTable returns the idx'th partition table entry of the MBR, idx in 0..3.
func (mbr *BootSector) PartitionTable(idx int) PartitionTableEntry {
	if idx < 0 || idx >= NumPartitions {
		panic("invalid partition table index")
	}
	return PartitionTableEntry{
		data: [pteLen]byte(mbr.data[pteOffset+idx*pteLen : pteOffset+(idx+1)*pteLen]),
	}
}

// SetPartitionTable sets the idx'th partition table entry of the MBR.
func (mbr *BootSector) SetPartitionTable(idx int, pte PartitionTableEntry) {
	if idx < 0 || idx >= NumPartitions {
		panic("invalid partition table index")
	}
	copy(mbr.data[pteOffset+idx*pteLen:pteOffset+(idx+1)*pteLen], pte.data[:])
}

// MakePTE creates a new partition table entry. CHS fields are filled with
// the 0xFE 0xFF 0xFF "use LBA" marker.
func MakePTE(attrs DriveAttributes, ptype PartitionType, startLBA, numLBA uint32) PartitionTableEntry {
	pte := PartitionTableEntry{}
	pte.data[0] = byte(attrs)
	pte.data[4] = byte(ptype)
	binary.LittleEndian.PutUint32(pte.data[8:12], startLBA)
	binary.LittleEndian.PutUint32(pte.data[12:16], numLBA)
	pte.data[1], pte.data[2], pte.data[3] = lbaCHS.Tuple()
	pte.data[5], pte.data[6], pte.data[7] = lbaCHS.Tuple()
	return pte
}

// Attributes returns the attributes of the partition the PTE refers to.
func (pte *PartitionTableEntry) Attributes() DriveAttributes {
	return DriveAttributes(pte.data[0])
}

// PartitionType returns the type the partition refers to, such as FAT16 or FAT32.
func (pte *PartitionTableEntry) PartitionType() PartitionType {
	return PartitionType(pte.data[4])
}

// StartLBA returns the starting sector of the partition in LBA format (logical block address).
func (pte *PartitionTableEntry) StartLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[8:12])
}

// NumberOfLBA returns the number of sectors (logical block addresses) in the partition.
func (pte *PartitionTableEntry) NumberOfLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[12:16])
}

// Usable reports whether the entry can describe a mountable volume: the
// status byte is 0x00 or 0x80, the partition starts past block 0 and spans
// at least 100 blocks.
func (pte *PartitionTableEntry) Usable() bool {
	return pte.Attributes()&^DriveAttrsBootable == 0 &&
		pte.NumberOfLBA() >= minPartitionBlocks &&
		pte.StartLBA() != 0
}

// IsBootable returns true if the partition the PTE refers to is bootable.
func (attrs DriveAttributes) IsBootable() bool {
	return attrs&DriveAttrsBootable != 0
}

// CHS is a cylinder-head-sector address. This addressing scheme is deprecated by modern operating systems
// in favor of LBA, or Logical Block Addressing.
type CHS uint32

// lbaCHS is written by partitioners when the address does not fit CHS.
var lbaCHS = NewCHS(0xFE, 0xFF, 0xFF)

// Tuple returns the three raw bytes of the address as stored on disk.
func (chs CHS) Tuple() (b0, b1, b2 uint8) {
	return uint8(chs), uint8(chs >> 8), uint8(chs >> 16)
}

// NewCHS creates a CHS address from its three raw on-disk bytes.
func NewCHS(b0, b1, b2 uint8) CHS {
	return CHS(b0) | CHS(b1)<<8 | CHS(b2)<<16
}

// PartitionType refers to the type of partition the Partition Table Entry refers to.
type PartitionType byte

const (
	PartitionTypeUnused   PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x06
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeFAT16LBA PartitionType = 0x0E
	PartitionTypeLinux    PartitionType = 0x83
)

// DriveAttributes refers to the first byte of a Partition Table Entry. It specifies
// if the partition is bootable.
type DriveAttributes byte

const (
	DriveAttrsBootable DriveAttributes = 0x80
)
