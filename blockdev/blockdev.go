/*
package blockdev provides 512 byte block devices to mount sdfat volumes on:
RAM backed devices for tests and tools, disk images behind an afero.Fs and raw
Linux block devices such as an SD card reader.
*/
package blockdev

import (
	"strconv"
)

// BlockSize is the block size of every device in this package.
const BlockSize = 512

// ErrorCode is a device failure.
//
// Codes 0x01 to 0x16 follow the SD card error numbering. The devices in this
// package return only the generic read, write and erase codes among them;
// the command level codes are there for SPI card drivers living outside this
// package, so a [Device] backed by a real card reports failures with the same
// values. Codes from 0x20 on are specific to memory and image devices.
type ErrorCode uint8

const (
	ErrCMD0             ErrorCode = 0x01 // Card did not enter idle state.
	ErrCMD8             ErrorCode = 0x02
	ErrCMD17            ErrorCode = 0x03 // Read block command failed.
	ErrCMD24            ErrorCode = 0x04 // Write block command failed.
	ErrCMD25            ErrorCode = 0x05
	ErrCMD58            ErrorCode = 0x06
	ErrACMD23           ErrorCode = 0x07
	ErrACMD41           ErrorCode = 0x08
	ErrBadCSD           ErrorCode = 0x09
	ErrErase            ErrorCode = 0x0A
	ErrEraseSingleBlock ErrorCode = 0x0B
	ErrEraseTimeout     ErrorCode = 0x0C
	ErrRead             ErrorCode = 0x0D
	ErrReadReg          ErrorCode = 0x0E
	ErrReadTimeout      ErrorCode = 0x0F
	ErrStopTransmission ErrorCode = 0x10
	ErrWrite            ErrorCode = 0x11
	ErrWriteBlockZero   ErrorCode = 0x12
	ErrWriteMultiple    ErrorCode = 0x13
	ErrWriteProgramming ErrorCode = 0x14
	ErrWriteTimeout     ErrorCode = 0x15
	ErrSCKRate          ErrorCode = 0x16
	ErrOutOfRange       ErrorCode = 0x20 // Access past the end of the device.
	ErrMisaligned       ErrorCode = 0x21 // Buffer not a multiple of BlockSize.
	ErrReadOnly         ErrorCode = 0x22
	ErrBadImage         ErrorCode = 0x23 // Image size not a multiple of BlockSize.
)

var codeStrings = [...]string{
	ErrCMD0:             "card reset failed (CMD0)",
	ErrCMD8:             "interface condition failed (CMD8)",
	ErrCMD17:            "read block failed (CMD17)",
	ErrCMD24:            "write block failed (CMD24)",
	ErrCMD25:            "write multiple blocks failed (CMD25)",
	ErrCMD58:            "read OCR failed (CMD58)",
	ErrACMD23:           "set pre-erase count failed (ACMD23)",
	ErrACMD41:           "card initialization failed (ACMD41)",
	ErrBadCSD:           "bad CSD register",
	ErrErase:            "erase failed",
	ErrEraseSingleBlock: "single block erase not supported",
	ErrEraseTimeout:     "erase timeout",
	ErrRead:             "read failed",
	ErrReadReg:          "read register failed",
	ErrReadTimeout:      "read timeout",
	ErrStopTransmission: "stop transmission failed",
	ErrWrite:            "write failed",
	ErrWriteBlockZero:   "write to block zero refused",
	ErrWriteMultiple:    "write multiple failed",
	ErrWriteProgramming: "write programming failed",
	ErrWriteTimeout:     "write timeout",
	ErrSCKRate:          "bad SPI clock rate",
	ErrOutOfRange:       "block out of range",
	ErrMisaligned:       "buffer not a multiple of block size",
	ErrReadOnly:         "device is read only",
	ErrBadImage:         "image size not a multiple of block size",
}

func (e ErrorCode) Error() string {
	if int(e) < len(codeStrings) && codeStrings[e] != "" {
		return "blockdev: " + codeStrings[e]
	}
	return "blockdev: error 0x" + strconv.FormatUint(uint64(e), 16)
}

// checkRange validates a multi block access of n bytes at startBlock on a
// device of size bytes.
func checkRange(n int, startBlock, size int64) error {
	if n%BlockSize != 0 {
		return ErrMisaligned
	} else if startBlock < 0 || startBlock*BlockSize+int64(n) > size {
		return ErrOutOfRange
	}
	return nil
}

// checkPartial validates a partial read of n bytes at offset within block.
func checkPartial(n int, block int64, offset int, size int64) error {
	if offset < 0 || offset+n > BlockSize {
		return ErrMisaligned
	} else if block < 0 || (block+1)*BlockSize > size {
		return ErrOutOfRange
	}
	return nil
}

// checkErase validates an inclusive erase range.
func checkErase(first, last, size int64) error {
	if first < 0 || last < first || (last+1)*BlockSize > size {
		return ErrOutOfRange
	}
	return nil
}

// Bytes is a RAM backed device.
type Bytes struct {
	buf []byte
}

// NewBytes returns a zeroed device of numBlocks blocks.
func NewBytes(numBlocks int) *Bytes {
	return &Bytes{buf: make([]byte, numBlocks*BlockSize)}
}

// BytesFrom returns a device backed by buf without copying it.
func BytesFrom(buf []byte) (*Bytes, error) {
	if len(buf)%BlockSize != 0 {
		return nil, ErrBadImage
	}
	return &Bytes{buf: buf}, nil
}

// Data returns the backing memory of the device.
func (b *Bytes) Data() []byte { return b.buf }

// Size returns the device size in bytes.
func (b *Bytes) Size() int64 { return int64(len(b.buf)) }

func (b *Bytes) ReadBlocks(dst []byte, startBlock int64) error {
	if err := checkRange(len(dst), startBlock, b.Size()); err != nil {
		return err
	}
	copy(dst, b.buf[startBlock*BlockSize:])
	return nil
}

func (b *Bytes) WriteBlocks(data []byte, startBlock int64) error {
	if err := checkRange(len(data), startBlock, b.Size()); err != nil {
		return err
	}
	copy(b.buf[startBlock*BlockSize:], data)
	return nil
}

func (b *Bytes) ReadPartial(dst []byte, block int64, offset int) error {
	if err := checkPartial(len(dst), block, offset, b.Size()); err != nil {
		return err
	}
	copy(dst, b.buf[block*BlockSize+int64(offset):])
	return nil
}

// EraseBlocks zeroes blocks first through last inclusive.
func (b *Bytes) EraseBlocks(first, last int64) error {
	if err := checkErase(first, last, b.Size()); err != nil {
		return err
	}
	clear(b.buf[first*BlockSize : (last+1)*BlockSize])
	return nil
}

// Map is a sparse RAM device. Only blocks holding nonzero data take memory,
// which makes it practical for FAT32 volumes of several gigabytes.
type Map struct {
	data      map[int64]*[BlockSize]byte
	numBlocks int64
}

// NewMap returns an empty device of numBlocks blocks.
func NewMap(numBlocks int64) *Map {
	return &Map{data: make(map[int64]*[BlockSize]byte), numBlocks: numBlocks}
}

// Size returns the device size in bytes.
func (m *Map) Size() int64 { return m.numBlocks * BlockSize }

// Allocated returns the number of blocks holding nonzero data.
func (m *Map) Allocated() int { return len(m.data) }

func (m *Map) ReadBlocks(dst []byte, startBlock int64) error {
	if err := checkRange(len(dst), startBlock, m.Size()); err != nil {
		return err
	}
	for i := int64(0); len(dst) > 0; i++ {
		if blk, ok := m.data[startBlock+i]; ok {
			copy(dst, blk[:])
		} else {
			clear(dst[:BlockSize])
		}
		dst = dst[BlockSize:]
	}
	return nil
}

func (m *Map) WriteBlocks(data []byte, startBlock int64) error {
	if err := checkRange(len(data), startBlock, m.Size()); err != nil {
		return err
	}
	for i := int64(0); len(data) > 0; i++ {
		if isZero(data[:BlockSize]) {
			delete(m.data, startBlock+i)
		} else {
			blk := m.data[startBlock+i]
			if blk == nil {
				blk = new([BlockSize]byte)
				m.data[startBlock+i] = blk
			}
			copy(blk[:], data)
		}
		data = data[BlockSize:]
	}
	return nil
}

func (m *Map) ReadPartial(dst []byte, block int64, offset int) error {
	if err := checkPartial(len(dst), block, offset, m.Size()); err != nil {
		return err
	}
	if blk, ok := m.data[block]; ok {
		copy(dst, blk[offset:])
	} else {
		clear(dst)
	}
	return nil
}

// EraseBlocks zeroes blocks first through last inclusive.
func (m *Map) EraseBlocks(first, last int64) error {
	if err := checkErase(first, last, m.Size()); err != nil {
		return err
	}
	for block := range m.data {
		if block >= first && block <= last {
			delete(m.data, block)
		}
	}
	return nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Device is implemented by every device in this package.
type Device interface {
	ReadBlocks(dst []byte, startBlock int64) error
	WriteBlocks(data []byte, startBlock int64) error
	ReadPartial(dst []byte, block int64, offset int) error
	EraseBlocks(first, last int64) error
	Size() int64
}

// ReadOnly wraps dev so every write and erase fails with ErrReadOnly.
func ReadOnly(dev Device) Device { return readOnly{dev} }

type readOnly struct{ Device }

func (readOnly) WriteBlocks([]byte, int64) error { return ErrReadOnly }

func (readOnly) EraseBlocks(int64, int64) error { return ErrReadOnly }
