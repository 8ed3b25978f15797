package sdfat

import (
	"encoding/binary"
	"strconv"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Boot sector and BIOS parameter block offsets.
const (
	bsJmpBoot      = 0
	bsOEMName      = 3
	bpbBytsPerSec  = 11
	bpbSecPerClus  = 13
	bpbRsvdSecCnt  = 14
	bpbNumFATs     = 16
	bpbRootEntCnt  = 17
	bpbTotSec16    = 19
	bpbMedia       = 21
	bpbFATSz16     = 22
	bpbSecPerTrk   = 24
	bpbNumHeads    = 26
	bpbHiddSec     = 28
	bpbTotSec32    = 32
	bsDrvNum       = 36
	bsBootSig      = 38
	bsVolID        = 39
	bsVolLab       = 43
	bsFilSysType   = 54
	bsBootCode     = 62
	bpbFATSz32     = 36
	bpbExtFlags32  = 40
	bpbFSVer32     = 42
	bpbRootClus32  = 44
	bpbFSInfo32    = 48
	bpbBkBootSec32 = 50
	bsDrvNum32     = 64
	bsBootSig32    = 66
	bsVolID32      = 67
	bsVolLab32     = 71
	bsFilSysType32 = 82
	bsBootCode32   = 90
	bs55AA         = 510
)

// FSInfo sector offsets.
const (
	fsiLeadSig    = 0
	fsiStrucSig   = 484
	fsiFreeCount  = 488
	fsiNxtFree    = 492
	fsiTrailSig   = 508
	fsiLeadValue  = 0x41615252
	fsiStrucValue = 0x61417272
	fsiTrailValue = 0xAA550000
)

// Directory entry offsets.
const (
	sizeDirEntry     = 32
	dirNameOff       = 0
	dirAttrOff       = 11
	dirNTresOff      = 12
	dirCrtTime10Off  = 13
	dirCrtTimeOff    = 14
	dirCrtDateOff    = 16
	dirLstAccDateOff = 18
	dirFstClusHIOff  = 20
	dirModTimeOff    = 22
	dirModDateOff    = 24
	dirFstClusLOOff  = 26
	dirFileSizeOff   = 28

	dirNameFree    = 0x00
	dirNameDeleted = 0xE5
)

// biosParamBlock a.k.a BPB is the BIOS Parameter Block found in the first
// sector of a FAT volume. It provides the sector and cluster sizes, the
// number and size of the FATs and the root directory location.
type biosParamBlock struct {
	data []byte
}

// fsinfoSector is the FS Information Sector for FAT32 volumes.
type fsinfoSector struct {
	data []byte
}

// isFAT32 reports whether the BPB uses the FAT32 extended layout, which is
// signalled by a zero 16 bit FAT size.
func (bs *biosParamBlock) isFAT32() bool {
	return binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]) == 0
}

// SectorSize returns the size of a sector in bytes.
func (bs *biosParamBlock) SectorSize() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbBytsPerSec:])
}

// SetSectorSize sets the size of a sector in bytes.
func (bs *biosParamBlock) SetSectorSize(size uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbBytsPerSec:], size)
}

// SectorsPerFAT returns the number of sectors per File Allocation Table.
func (bs *biosParamBlock) SectorsPerFAT() uint32 {
	fatsz := uint32(binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]))
	if fatsz == 0 {
		fatsz = binary.LittleEndian.Uint32(bs.data[bpbFATSz32:])
	}
	return fatsz
}

// SetSectorsPerFAT16 sets the 16 bit FAT size field used by FAT16 volumes.
func (bs *biosParamBlock) SetSectorsPerFAT16(fatsz uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbFATSz16:], fatsz)
}

// SetSectorsPerFAT32 clears the 16 bit FAT size and sets the 32 bit one.
func (bs *biosParamBlock) SetSectorsPerFAT32(fatsz uint32) {
	binary.LittleEndian.PutUint16(bs.data[bpbFATSz16:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbFATSz32:], fatsz)
}

// NumberOfFATs returns the number of File Allocation Tables. Should be 1 or 2.
func (bs *biosParamBlock) NumberOfFATs() uint8 {
	return bs.data[bpbNumFATs]
}

// SetNumberOfFATs sets the number of FATs.
func (bs *biosParamBlock) SetNumberOfFATs(nfats uint8) {
	bs.data[bpbNumFATs] = nfats
}

// SectorsPerCluster returns the number of sectors per cluster.
// Should be a power of 2 and not larger than 128.
func (bs *biosParamBlock) SectorsPerCluster() uint8 {
	return bs.data[bpbSecPerClus]
}

// SetSectorsPerCluster sets the number of sectors per cluster.
func (bs *biosParamBlock) SetSectorsPerCluster(spclus uint8) {
	bs.data[bpbSecPerClus] = spclus
}

// ReservedSectors returns the number of reserved sectors at the beginning of the volume.
// Should be at least 1. FAT32 volumes usually reserve 32 sectors which hold the
// boot sector, the FS information sector and their backups.
func (bs *biosParamBlock) ReservedSectors() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRsvdSecCnt:])
}

// SetReservedSectors sets the number of reserved sectors at the beginning of the volume.
func (bs *biosParamBlock) SetReservedSectors(rsvd uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbRsvdSecCnt:], rsvd)
}

// TotalSectors returns the total number of sectors in the volume.
func (bs *biosParamBlock) TotalSectors() uint32 {
	totsec := uint32(binary.LittleEndian.Uint16(bs.data[bpbTotSec16:]))
	if totsec == 0 {
		totsec = binary.LittleEndian.Uint32(bs.data[bpbTotSec32:])
	}
	return totsec
}

// SetTotalSectors sets the total number of sectors in the volume, using the
// 16 bit field when the count fits.
func (bs *biosParamBlock) SetTotalSectors(totsec uint32) {
	if totsec < 0x10000 {
		binary.LittleEndian.PutUint16(bs.data[bpbTotSec16:], uint16(totsec))
		binary.LittleEndian.PutUint32(bs.data[bpbTotSec32:], 0)
		return
	}
	binary.LittleEndian.PutUint16(bs.data[bpbTotSec16:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbTotSec32:], totsec)
}

// RootDirEntries returns the number of 32 byte entries in a FAT16 root directory.
// Is zero on FAT32.
func (bs *biosParamBlock) RootDirEntries() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRootEntCnt:])
}

// SetRootDirEntries sets the number of entries in the root directory.
func (bs *biosParamBlock) SetRootDirEntries(entries uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbRootEntCnt:], entries)
}

// RootCluster returns the first cluster of the FAT32 root directory.
func (bs *biosParamBlock) RootCluster() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbRootClus32:])
}

// SetRootCluster sets the first cluster of the FAT32 root directory.
func (bs *biosParamBlock) SetRootCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(bs.data[bpbRootClus32:], cluster)
}

// Media returns the media descriptor byte, 0xF8 for fixed disks.
func (bs *biosParamBlock) Media() uint8 {
	return bs.data[bpbMedia]
}

// SetMedia sets the media descriptor byte.
func (bs *biosParamBlock) SetMedia(media uint8) {
	bs.data[bpbMedia] = media
}

// SetGeometry sets the legacy CHS geometry hints.
func (bs *biosParamBlock) SetGeometry(sectorsPerTrack, heads uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbSecPerTrk:], sectorsPerTrack)
	binary.LittleEndian.PutUint16(bs.data[bpbNumHeads:], heads)
}

// BootSignature returns the boot signature at offset 510 which should be 0xAA55.
func (bs *biosParamBlock) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bs55AA:])
}

// SetBootSignature writes 0xAA55 at offset 510.
func (bs *biosParamBlock) SetBootSignature() {
	binary.LittleEndian.PutUint16(bs.data[bs55AA:], 0xAA55)
}

// FSInfo returns the sector number of the FS Information Sector.
// Expect =1 for FAT32.
func (bs *biosParamBlock) FSInfo() uint16 {
	if !bs.isFAT32() {
		return 0
	}
	return binary.LittleEndian.Uint16(bs.data[bpbFSInfo32:])
}

// extOff returns the offset of an extended boot record field, which moves
// 28 bytes further on FAT32.
func (bs *biosParamBlock) extOff(fat16Off int) int {
	if bs.isFAT32() {
		return fat16Off + (bsDrvNum32 - bsDrvNum)
	}
	return fat16Off
}

// SetFAT32Layout sets the FAT32 only fields: root cluster, FS information
// sector and backup boot sector. Version and flags are zeroed.
func (bs *biosParamBlock) SetFAT32Layout(rootCluster uint32, fsinfo, backupBoot uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbExtFlags32:], 0)
	binary.LittleEndian.PutUint16(bs.data[bpbFSVer32:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbRootClus32:], rootCluster)
	binary.LittleEndian.PutUint16(bs.data[bpbFSInfo32:], fsinfo)
	binary.LittleEndian.PutUint16(bs.data[bpbBkBootSec32:], backupBoot)
}

// BackupBootSector returns the sector of the FAT32 boot sector copy.
func (bs *biosParamBlock) BackupBootSector() uint16 {
	if !bs.isFAT32() {
		return 0
	}
	return binary.LittleEndian.Uint16(bs.data[bpbBkBootSec32:])
}

// DriveNumber returns the drive number.
func (bs *biosParamBlock) DriveNumber() uint8 {
	return bs.data[bs.extOff(bsDrvNum)]
}

// VolumeSerialNumber returns the volume serial number.
func (bs *biosParamBlock) VolumeSerialNumber() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bs.extOff(bsVolID):])
}

// VolumeLabel returns the volume label.
func (bs *biosParamBlock) VolumeLabel() [11]byte {
	var label [11]byte
	copy(label[:], bs.data[bs.extOff(bsVolLab):])
	return label
}

// SetExtended writes the extended boot record: drive number, signature 0x29,
// serial number, blank padded label and filesystem type string. Call after
// the FAT size fields so the FAT16 or FAT32 layout is picked correctly.
func (bs *biosParamBlock) SetExtended(drive uint8, serial uint32, label, fstype string) {
	off := bs.extOff(bsDrvNum)
	bs.data[off] = drive
	bs.data[bs.extOff(bsBootSig)] = 0x29
	binary.LittleEndian.PutUint32(bs.data[bs.extOff(bsVolID):], serial)
	padCopy(bs.data[bs.extOff(bsVolLab):bs.extOff(bsVolLab)+11], label)
	padCopy(bs.data[bs.extOff(bsFilSysType):bs.extOff(bsFilSysType)+8], fstype)
}

// FilesystemType returns the filesystem type string, usually "FAT16   " or "FAT32   ".
func (bs *biosParamBlock) FilesystemType() [8]byte {
	var label [8]byte
	copy(label[:], bs.data[bs.extOff(bsFilSysType):])
	return label
}

// JumpInstruction returns the x86 jump instruction at the beginning of the boot sector.
func (bs *biosParamBlock) JumpInstruction() [3]byte {
	var jmpboot [3]byte
	copy(jmpboot[:], bs.data[bsJmpBoot:])
	return jmpboot
}

// SetJumpInstruction sets the x86 jump over the BPB.
func (bs *biosParamBlock) SetJumpInstruction(jmp [3]byte) {
	copy(bs.data[bsJmpBoot:], jmp[:])
}

// OEMName returns the Original Equipment Manufacturer name at the start of the bootsector.
func (bs *biosParamBlock) OEMName() [8]byte {
	var oemname [8]byte
	copy(oemname[:], bs.data[bsOEMName:])
	return oemname
}

// SetOEMName sets the Original Equipment Manufacturer name at the start of the bootsector.
// Will clip off any characters beyond the 8th.
func (bs *biosParamBlock) SetOEMName(name string) {
	padCopy(bs.data[bsOEMName:bsOEMName+8], name)
}

// VolumeOffset returns the number of hidden sectors preceding the volume.
func (bs *biosParamBlock) VolumeOffset() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbHiddSec:])
}

// SetVolumeOffset sets the number of hidden sectors preceding the volume.
func (bs *biosParamBlock) SetVolumeOffset(hidden uint32) {
	binary.LittleEndian.PutUint32(bs.data[bpbHiddSec:], hidden)
}

func padCopy(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func clipname(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == 0) {
		b = b[:len(b)-1]
	}
	return b
}

func labelAppend(dst []byte, label string, data []byte, sep byte) []byte {
	if len(data) == 0 {
		return dst
	}
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = append(dst, data...)
	dst = append(dst, sep)
	return dst
}

func labelAppendUint32(label string, dst []byte, data uint32, sep byte) []byte {
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = strconv.AppendUint(dst, uint64(data), 10)
	dst = append(dst, sep)
	return dst
}

// Appendf appends a human readable dump of the BPB fields to dst.
func (bs *biosParamBlock) Appendf(dst []byte, separator byte) []byte {
	appendData := func(name string, data []byte) {
		dst = labelAppend(dst, name, data, separator)
	}
	appendInt := func(name string, data uint32) {
		dst = labelAppendUint32(name, dst, data, separator)
	}
	oem := bs.OEMName()
	appendData("OEM", clipname(oem[:]))
	fstype := bs.FilesystemType()
	appendData("FSType", clipname(fstype[:]))
	volLabel := bs.VolumeLabel()
	appendData("VolumeLabel", clipname(volLabel[:]))
	appendInt("VolumeSerialNumber", bs.VolumeSerialNumber())
	appendInt("VolumeOffset", bs.VolumeOffset())
	appendInt("SectorSize", uint32(bs.SectorSize()))
	appendInt("SectorsPerCluster", uint32(bs.SectorsPerCluster()))
	appendInt("ReservedSectors", uint32(bs.ReservedSectors()))
	appendInt("NumberOfFATs", uint32(bs.NumberOfFATs()))
	appendInt("RootDirEntries", uint32(bs.RootDirEntries()))
	appendInt("TotalSectors", bs.TotalSectors())
	appendInt("SectorsPerFAT", bs.SectorsPerFAT())
	if bs.isFAT32() {
		appendInt("RootCluster", bs.RootCluster())
		appendInt("FSInfo", uint32(bs.FSInfo()))
	}
	appendInt("DriveNumber", uint32(bs.DriveNumber()))
	return dst
}

// SetSignatures writes the three signatures expected by most implementations.
func (fsi *fsinfoSector) SetSignatures() {
	binary.LittleEndian.PutUint32(fsi.data[fsiLeadSig:], fsiLeadValue)
	binary.LittleEndian.PutUint32(fsi.data[fsiStrucSig:], fsiStrucValue)
	binary.LittleEndian.PutUint32(fsi.data[fsiTrailSig:], fsiTrailValue)
}

// Valid reports whether all three signatures are present.
func (fsi *fsinfoSector) Valid() bool {
	return binary.LittleEndian.Uint32(fsi.data[fsiLeadSig:]) == fsiLeadValue &&
		binary.LittleEndian.Uint32(fsi.data[fsiStrucSig:]) == fsiStrucValue &&
		binary.LittleEndian.Uint32(fsi.data[fsiTrailSig:]) == fsiTrailValue
}

// FreeClusterCount returns the last known number of free clusters.
func (fsi *fsinfoSector) FreeClusterCount() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiFreeCount:])
}

// LastAllocatedCluster returns the allocation hint.
func (fsi *fsinfoSector) LastAllocatedCluster() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiNxtFree:])
}

// SetFreeClusterCount sets the last known number of free data clusters on
// the volume. 0xFFFFFFFF means unknown.
func (fsi *fsinfoSector) SetFreeClusterCount(count uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiFreeCount:], count)
}

// SetLastAllocatedCluster sets the allocation hint. 0xFFFFFFFF means unknown.
func (fsi *fsinfoSector) SetLastAllocatedCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiNxtFree:], cluster)
}

// Attr holds the attribute bits of a directory entry.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
	AttrLongName  Attr = 0x0F
)

// IsReadonly indicates that the file is read-only and must not be written to.
func (attr Attr) IsReadonly() bool { return attr&AttrReadOnly != 0 }

// IsHidden indicates that the file should not be shown in directory listings.
func (attr Attr) IsHidden() bool { return attr&AttrHidden != 0 }

// IsSystem indicates that the file belongs to the system and must not be physically moved.
func (attr Attr) IsSystem() bool { return attr&AttrSystem != 0 }

// IsVolumeLabel indicates a volume label entry, normally only residing in the root directory.
func (attr Attr) IsVolumeLabel() bool { return attr&AttrVolumeID != 0 }

// IsSubdirectory indicates that the cluster chain of the entry holds a directory.
func (attr Attr) IsSubdirectory() bool { return attr&AttrDirectory != 0 }

// IsArchive returns the archive bit. See https://en.wikipedia.org/wiki/Archive_bit
func (attr Attr) IsArchive() bool { return attr&AttrArchive != 0 }

// DirEntry is a 32 byte short name directory entry. Entries returned by
// [File.ReadDir] and [File.DirEntry] are copies owned by the caller.
type DirEntry struct {
	data []byte
}

func (de *DirEntry) copyFrom(src DirEntry) {
	if cap(de.data) < sizeDirEntry {
		de.data = make([]byte, sizeDirEntry)
	}
	de.data = de.data[:sizeDirEntry]
	copy(de.data, src.data)
}

// IsFree reports the entry is unused and no used entry follows it.
func (de DirEntry) IsFree() bool { return de.data[dirNameOff] == dirNameFree }

// IsDeleted reports the entry was deleted and its slot can be reused.
func (de DirEntry) IsDeleted() bool { return de.data[dirNameOff] == dirNameDeleted }

// IsDot reports the entry is "." or "..".
func (de DirEntry) IsDot() bool { return de.data[dirNameOff] == '.' }

// IsFile reports the entry is a normal file.
func (de DirEntry) IsFile() bool {
	return de.Attributes()&(AttrVolumeID|AttrDirectory) == 0
}

// IsSubdir reports the entry is a subdirectory.
func (de DirEntry) IsSubdir() bool {
	return de.Attributes()&(AttrVolumeID|AttrDirectory) == AttrDirectory
}

// IsFileOrSubdir is false for volume labels and long name entries.
func (de DirEntry) IsFileOrSubdir() bool {
	return de.Attributes()&AttrVolumeID == 0
}

// ShortName returns the raw blank padded 8.3 name.
func (de DirEntry) ShortName() (sn ShortName) {
	copy(sn[:], de.data[dirNameOff:])
	return sn
}

// Name returns the entry name in "NAME.EXT" form.
func (de DirEntry) Name() string {
	return de.ShortName().String()
}

// Attributes returns the attribute bits of the entry.
func (de DirEntry) Attributes() Attr { return Attr(de.data[dirAttrOff]) }

// FirstCluster returns the first cluster of the entry's chain, 0 when empty.
func (de DirEntry) FirstCluster() uint32 {
	return uint32(binary.LittleEndian.Uint16(de.data[dirFstClusHIOff:]))<<16 |
		uint32(binary.LittleEndian.Uint16(de.data[dirFstClusLOOff:]))
}

// Size returns the file size in bytes. Directories report 0.
func (de DirEntry) Size() uint32 {
	return binary.LittleEndian.Uint32(de.data[dirFileSizeOff:])
}

// CreatedAt returns the creation timestamp.
func (de DirEntry) CreatedAt() time.Time { return de.created().Time() }

// ModTime returns the last write timestamp.
func (de DirEntry) ModTime() time.Time { return de.modified().Time() }

// AccessDate returns the last access date.
func (de DirEntry) AccessDate() time.Time {
	return datetime{date: binary.LittleEndian.Uint16(de.data[dirLstAccDateOff:])}.Time()
}

func (de DirEntry) created() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(de.data[dirCrtTimeOff:]),
		date: binary.LittleEndian.Uint16(de.data[dirCrtDateOff:]),
		fine: de.data[dirCrtTime10Off],
	}
}

func (de DirEntry) modified() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(de.data[dirModTimeOff:]),
		date: binary.LittleEndian.Uint16(de.data[dirModDateOff:]),
	}
}

func (de DirEntry) setShortName(sn ShortName) { copy(de.data[dirNameOff:], sn[:]) }

func (de DirEntry) setAttributes(attr Attr) { de.data[dirAttrOff] = byte(attr) }

func (de DirEntry) setFirstCluster(cluster uint32) {
	binary.LittleEndian.PutUint16(de.data[dirFstClusHIOff:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(de.data[dirFstClusLOOff:], uint16(cluster))
}

func (de DirEntry) setSize(size uint32) {
	binary.LittleEndian.PutUint32(de.data[dirFileSizeOff:], size)
}

func (de DirEntry) setCreated(dt datetime) {
	binary.LittleEndian.PutUint16(de.data[dirCrtTimeOff:], dt.time)
	binary.LittleEndian.PutUint16(de.data[dirCrtDateOff:], dt.date)
	de.data[dirCrtTime10Off] = dt.fine
}

func (de DirEntry) setModified(dt datetime) {
	binary.LittleEndian.PutUint16(de.data[dirModTimeOff:], dt.time)
	binary.LittleEndian.PutUint16(de.data[dirModDateOff:], dt.date)
}

func (de DirEntry) setAccessDate(date uint16) {
	binary.LittleEndian.PutUint16(de.data[dirLstAccDateOff:], date)
}

// ShortName is a blank padded 8.3 name as stored on disk.
type ShortName [11]byte

// String formats the name as "NAME.EXT", or "NAME" with no extension.
// Bytes above 0x7F are decoded as code page 437.
func (sn ShortName) String() string {
	var buf [12]byte
	n := 0
	for i, c := range sn {
		if c == ' ' {
			continue
		}
		if i == 8 {
			buf[n] = '.'
			n++
		}
		buf[n] = c
		n++
	}
	if n > 0 && buf[0] == 0x05 {
		buf[0] = dirNameDeleted // 0x05 escapes a leading 0xE5.
	}
	return decodeOEM(buf[:n])
}

func decodeOEM(b []byte) string {
	for _, c := range b {
		if c >= 0x80 {
			out, err := charmap.CodePage437.NewDecoder().Bytes(b)
			if err != nil {
				break
			}
			return string(out)
		}
	}
	return string(b)
}

// datetime is a FAT packed date and time. fine holds 10ms units, 0..199.
type datetime struct {
	time uint16
	date uint16
	fine uint8
}

// defaultDatetime is 2000-01-01 01:00:00, used when no Clock is configured.
var defaultDatetime = datetime{
	date: fatDate(2000, 1, 1),
	time: fatTime(1, 0, 0),
}

func fatDate(year int, month time.Month, day int) uint16 {
	return uint16(year-1980)<<9 | uint16(month)<<5 | uint16(day)
}

func fatTime(hour, min, sec int) uint16 {
	return uint16(hour<<11 | min<<5 | sec>>1)
}

func newDatetime(t time.Time) datetime {
	switch year := t.Year(); {
	case year < 1980:
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	case year > 2107:
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)
	}
	hour, min, sec := t.Clock()
	year, month, day := t.Date()
	return datetime{
		time: fatTime(hour, min, sec),
		date: fatDate(year, month, day),
		fine: uint8(t.Nanosecond()/1e7) + 100*uint8(sec%2),
	}
}

func (dt datetime) Milliseconds() int {
	if dt.fine >= 100 {
		return 10 * int(dt.fine-100)
	}
	return 10 * int(dt.fine)
}

func (dt datetime) Date() (year int, month time.Month, day int) {
	yearSince1980 := int(dt.date >> 9)
	month = time.Month((dt.date >> 5) & 0xf)
	day = int(dt.date & 0x1f)
	return 1980 + yearSince1980, month, day
}

func (dt datetime) Clock() (hour, min, sec int) {
	hour = int(dt.time >> 11)
	min = int((dt.time >> 5) & 0x3f)
	sec = 2 * int(dt.time&0x1f)
	if dt.fine >= 100 {
		sec += 1
	}
	return hour, min, sec
}

func (dt datetime) Time() time.Time {
	// https://www.win.tue.nl/~aeb/linux/fs/fat/fat-1.html
	hour, min, sec := dt.Clock()
	year, month, day := dt.Date()
	return time.Date(year, month, day, hour, min, sec, 1e6*dt.Milliseconds(), time.UTC)
}
