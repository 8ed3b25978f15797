package sdfat

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"
)

// FuzzFS runs a small virtual machine over a FAT16 volume. Each 64 bit word
// is one operation on an open file table and the results are checked
// against an in-memory model of the file contents.
func FuzzFS(f *testing.F) {
	// 64-bit operation definition, starting with least significant bits:
	//
	//  - OP:       First 4 bits are the operation to perform.
	//  - WHO:      Next 4 bits select the target file.
	//  - PERM:     Next 2 bits are the access mode. 0 means read only.
	//  - APPEND:   Next bit opens the file in append mode.
	//  - RESERVED: Middle bits are reserved.
	//  - DATASIZE: Last 16 bits is the size of the data to read/write, if applicable.
	const (
		opChangeDir uint64 = iota
		opCreateFile
		opOpenFile
		opReadFile
		opWriteFile
		opCloseFile
		opSeekFile
		opTruncFile

		whoOff      = 4
		permOff     = 8
		appendBit   = 1 << 10
		datasizeOff = 48
	)
	type filinfo struct {
		file   *File
		name   string
		data   []byte
		ptr    int
		closed bool
	}
	genName := func(dir string, who uint8) string {
		if dir == "/" {
			dir = ""
		}
		return dir + "/" + string(rune('a'+who))
	}
	getWho := func(finfos []filinfo, who uint8) *filinfo {
		if len(finfos) == 0 {
			return nil
		}
		return &finfos[int(who)%len(finfos)]
	}
	writeData := make([]byte, 1<<16)
	readData := make([]byte, 1<<16)
	for i := range writeData {
		writeData[i] = byte(i * 7)
	}
	rw := uint64(ModeRW) << permOff
	f.Add(opCreateFile|rw, opWriteFile|(1000<<datasizeOff), opCloseFile,
		opOpenFile, opReadFile|(1000<<datasizeOff), opChangeDir,
		opCreateFile|(1<<whoOff)|rw|appendBit, opWriteFile|(1<<whoOff)|(600<<datasizeOff),
		opSeekFile|(1<<whoOff)|(100<<datasizeOff), opWriteFile|(1<<whoOff)|(10<<datasizeOff),
		opTruncFile|(1<<whoOff)|(300<<datasizeOff), opReadFile|(1<<whoOff)|(1001<<datasizeOff),
	)
	f.Add(opCreateFile|rw, opWriteFile|(5000<<datasizeOff), opSeekFile|(512<<datasizeOff),
		opWriteFile|(2000<<datasizeOff), opSeekFile, opReadFile|(8000<<datasizeOff),
		opTruncFile|(513<<datasizeOff), opCloseFile, opOpenFile|rw,
		opWriteFile|(1<<datasizeOff), opReadFile|(600<<datasizeOff), opCloseFile,
	)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	f.Fuzz(func(t *testing.T, fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7, fsop8, fsop9, fsop10, fsop11 uint64) {
		fsys, dev := newFAT16(t)
		fsys.SetLogger(logger)
		if err := fsys.Mkdir("/rootdir"); err != nil {
			t.Fatal(err)
		}
		fsops := [...]uint64{fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7, fsop8, fsop9, fsop10, fsop11}
		fileinfos := make([]filinfo, 0, len(fsops))
		dir := "/"
		for i, fsop := range fsops {
			op := fsop & 0xf
			who := uint8(fsop>>whoOff) & 0xf
			mode := Mode(fsop>>permOff) & ModeRW
			if mode == 0 {
				mode = ModeRead
			}
			if fsop&appendBit != 0 {
				mode |= ModeAppend
			}
			datasize := int(uint16(fsop >> datasizeOff))
			switch op {
			case opChangeDir:
				if dir == "/" {
					dir = "/rootdir"
				} else {
					dir = "/"
				}

			case opCreateFile:
				name := genName(dir, who)
				exists := false
				for j := range fileinfos {
					exists = exists || fileinfos[j].name == name
				}
				if exists {
					break
				}
				file, err := fsys.Open(name, mode|ModeCreate)
				if err != nil {
					t.Fatalf("op %d: create %s: %v", i, name, err)
				}
				fileinfos = append(fileinfos, filinfo{file: file, name: name})

			case opOpenFile:
				info := getWho(fileinfos, who)
				if info == nil || !info.closed {
					break // Don't open already open files for simplicity's sake.
				}
				file, err := fsys.Open(info.name, mode)
				if err != nil {
					t.Fatalf("op %d: reopen %s: %v", i, info.name, err)
				}
				info.file, info.ptr, info.closed = file, 0, false

			case opCloseFile:
				info := getWho(fileinfos, who)
				if info == nil || info.closed {
					break
				}
				if err := info.file.Close(); err != nil {
					t.Fatalf("op %d: close %s: %v", i, info.name, err)
				}
				info.closed = true

			case opWriteFile:
				info := getWho(fileinfos, who)
				if info == nil || info.closed {
					break
				}
				n, err := info.file.Write(writeData[:datasize])
				if info.file.Mode()&ModeWrite == 0 {
					if n != 0 || err == nil {
						t.Fatalf("op %d: forbidden write of %d bytes: %v", i, n, err)
					}
					break
				}
				if err != nil || n != datasize {
					t.Fatalf("op %d: wrote %d of %d bytes: %v", i, n, datasize, err)
				}
				if info.file.Mode()&ModeAppend != 0 {
					info.ptr = len(info.data)
				}
				end := info.ptr + n
				if end > len(info.data) {
					info.data = append(info.data, make([]byte, end-len(info.data))...)
				}
				copy(info.data[info.ptr:], writeData[:n])
				info.ptr = end

			case opReadFile:
				info := getWho(fileinfos, who)
				if info == nil || info.closed {
					break
				}
				n, err := info.file.Read(readData[:datasize])
				if info.file.Mode()&ModeRead == 0 {
					if n != 0 || err == nil {
						t.Fatalf("op %d: forbidden read of %d bytes: %v", i, n, err)
					}
					break
				}
				want := min(datasize, len(info.data)-info.ptr)
				if (err != nil && err != io.EOF) || n != want {
					t.Fatalf("op %d: read %d bytes, want %d: %v", i, n, want, err)
				}
				if !bytes.Equal(readData[:n], info.data[info.ptr:info.ptr+n]) {
					t.Fatalf("op %d: %s: read data mismatch at %d", i, info.name, info.ptr)
				}
				info.ptr += n

			case opSeekFile:
				info := getWho(fileinfos, who)
				if info == nil || info.closed {
					break
				}
				pos := min(datasize, len(info.data))
				if err := info.file.SeekSet(uint32(pos)); err != nil {
					t.Fatalf("op %d: seek %d: %v", i, pos, err)
				}
				info.ptr = pos

			case opTruncFile:
				info := getWho(fileinfos, who)
				if info == nil || info.closed || info.file.Mode()&ModeWrite == 0 {
					break
				}
				length := min(datasize, len(info.data))
				if err := info.file.Truncate(uint32(length)); err != nil {
					t.Fatalf("op %d: truncate to %d: %v", i, length, err)
				}
				info.data = info.data[:length]
				info.ptr = min(info.ptr, length)
			}
		}

		// Everything written must survive a remount.
		for i := range fileinfos {
			if info := &fileinfos[i]; !info.closed {
				if err := info.file.Close(); err != nil {
					t.Fatalf("close %s: %v", info.name, err)
				}
			}
		}
		if err := fsys.Unmount(); err != nil {
			t.Fatal(err)
		}
		var again FS
		if err := again.Mount(dev); err != nil {
			t.Fatal(err)
		}
		for _, info := range fileinfos {
			file, err := again.Open(info.name, ModeRead)
			if err != nil {
				t.Fatalf("%s after remount: %v", info.name, err)
			}
			got, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, info.data) {
				t.Fatalf("%s after remount: %d bytes, want %d", info.name, len(got), len(info.data))
			}
		}
	})
}
