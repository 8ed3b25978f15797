package sdfat

import (
	"io/fs"
	"strconv"
)

// fileResult is the error kind returned by filesystem operations.
type fileResult int

const (
	frOK               fileResult = iota // succeeded
	frDiskErr                            // the block device failed
	frNoFile                             // could not find the file
	frNoPath                             // could not find a directory in the path
	frInvalidName                        // the name is not a valid 8.3 name
	frDenied                             // access denied by mode, attributes or file type
	frExist                              // the file already exists
	frInvalidObject                      // the handle is not open
	frAlreadyOpen                        // the handle is already open
	frNoFilesystem                       // no valid FAT volume found
	frUnsupported                        // the operation or FAT type is not supported
	frInvalidParameter                   // given parameter is invalid
	frNoSpace                            // no free clusters left
	frNotEmpty                           // directory is not empty
	frOutOfRange                         // position, length or cluster out of range
	frNotDir                             // handle or path element is not a directory
	frDirFull                            // fixed size root directory has no free entries
)

// Errors returned by the filesystem. Use [errors.Is] to test for them since
// they may be wrapped with path or device context.
var (
	ErrDisk             error = frDiskErr
	ErrNotExist         error = frNoFile
	ErrNoPath           error = frNoPath
	ErrInvalidName      error = frInvalidName
	ErrDenied           error = frDenied
	ErrExist            error = frExist
	ErrClosed           error = frInvalidObject
	ErrAlreadyOpen      error = frAlreadyOpen
	ErrNoFilesystem     error = frNoFilesystem
	ErrUnsupported      error = frUnsupported
	ErrInvalidParameter error = frInvalidParameter
	ErrNoSpace          error = frNoSpace
	ErrNotEmpty         error = frNotEmpty
	ErrOutOfRange       error = frOutOfRange
	ErrNotDir           error = frNotDir
	ErrDirFull          error = frDirFull
)

var frStrings = [...]string{
	frOK:               "ok",
	frDiskErr:          "disk error",
	frNoFile:           "file does not exist",
	frNoPath:           "path not found",
	frInvalidName:      "invalid 8.3 name",
	frDenied:           "access denied",
	frExist:            "file already exists",
	frInvalidObject:    "file not open",
	frAlreadyOpen:      "file already open",
	frNoFilesystem:     "no FAT filesystem",
	frUnsupported:      "unsupported",
	frInvalidParameter: "invalid parameter",
	frNoSpace:          "no space left on volume",
	frNotEmpty:         "directory not empty",
	frOutOfRange:       "out of range",
	frNotDir:           "not a directory",
	frDirFull:          "root directory full",
}

func (fr fileResult) Error() string {
	if fr >= 0 && int(fr) < len(frStrings) {
		return "sdfat: " + frStrings[fr]
	}
	return "sdfat.fr:" + strconv.Itoa(int(fr))
}

// Is maps error kinds onto their [io/fs] counterparts so callers can test
// with errors.Is(err, fs.ErrNotExist) and friends.
func (fr fileResult) Is(target error) bool {
	switch fr {
	case frNoFile, frNoPath:
		return target == fs.ErrNotExist
	case frExist:
		return target == fs.ErrExist
	case frDenied:
		return target == fs.ErrPermission
	case frInvalidObject:
		return target == fs.ErrClosed
	case frInvalidName, frInvalidParameter:
		return target == fs.ErrInvalid
	}
	return false
}

// DiskError wraps a failure of the underlying [BlockDevice].
type DiskError struct {
	Op    string // "read" or "write".
	Block uint32
	Err   error
}

func (e *DiskError) Error() string {
	return "sdfat: " + e.Op + " block " + strconv.FormatUint(uint64(e.Block), 10) + ": " + e.Err.Error()
}

func (e *DiskError) Unwrap() error { return e.Err }

// Is reports true for [ErrDisk].
func (e *DiskError) Is(target error) bool { return target == ErrDisk }
