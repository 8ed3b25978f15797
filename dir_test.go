package sdfat

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMakeDir(t *testing.T) {
	fsys, dev := newFAT16(t)
	if err := fsys.Mkdir("/outer/inner"); err != nil {
		t.Fatal(err)
	}
	outer, err := fsys.Open("/outer", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer outer.Close()
	inner, err := fsys.Open("/outer/inner", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer inner.Close()
	if !outer.IsSubdir() || !inner.IsSubdir() {
		t.Fatal("created entries are not directories")
	}
	if outer.Size() != BlockSize {
		t.Errorf("directory size %d, want one cluster", outer.Size())
	}

	vol := fsys.Volume()
	first := dev.Data()[vol.clusterStartBlock(inner.FirstCluster())*BlockSize:]
	dot := DirEntry{data: first[:sizeDirEntry]}
	dotdot := DirEntry{data: first[sizeDirEntry : 2*sizeDirEntry]}
	if dot.Name() != "." || dot.FirstCluster() != inner.FirstCluster() || !dot.IsSubdir() {
		t.Errorf("dot entry %q cluster %d", dot.Name(), dot.FirstCluster())
	}
	if dotdot.Name() != ".." || dotdot.FirstCluster() != outer.FirstCluster() {
		t.Errorf("dotdot entry %q cluster %d, want %d", dotdot.Name(), dotdot.FirstCluster(), outer.FirstCluster())
	}
	// Entries of a directory in root point back to cluster 0.
	first = dev.Data()[vol.clusterStartBlock(outer.FirstCluster())*BlockSize:]
	if c := (DirEntry{data: first[sizeDirEntry : 2*sizeDirEntry]}).FirstCluster(); c != 0 {
		t.Errorf("dotdot of /outer points to cluster %d", c)
	}

	var d File
	if err := d.MakeDir(outer, "inner"); !errors.Is(err, ErrExist) {
		t.Errorf("creating existing directory: %v", err)
	}
	// Mkdir is mkdir -p.
	if err := fsys.Mkdir("/outer/inner"); err != nil {
		t.Errorf("Mkdir of existing path: %v", err)
	}
}

func TestOpenByIndex(t *testing.T) {
	fsys, _ := newFAT16(t)
	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "/d/f.txt", []byte("data"))
	dir, err := fsys.Open("/d", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()
	for _, index := range []uint16{0, 1, 3, 100} {
		var f File
		if err := f.OpenByIndex(dir, index, ModeRead); err == nil {
			t.Errorf("index %d opened", index)
		}
	}
	var f File
	if err := f.OpenByIndex(dir, 2, ModeCreate|ModeWrite); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("create by index: %v", err)
	}
	if err := f.OpenByIndex(dir, 2, ModeRead); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(&f)
	if err != nil || string(data) != "data" {
		t.Errorf("read %q, %v", data, err)
	}
	if dir.Position() != 3*sizeDirEntry {
		t.Errorf("directory left at %d", dir.Position())
	}
}

func TestRmDir(t *testing.T) {
	fsys, dev := newFAT16(t)
	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "/d/f.txt", []byte("x"))
	dir, err := fsys.Open("/d", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	entryOff := dir.dirBlock*BlockSize + uint32(dir.dirIndex)*sizeDirEntry
	before := bytes.Clone(dev.Data()[entryOff : entryOff+sizeDirEntry])
	if err := dir.RmDir(); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("removing non-empty directory: %v", err)
	}
	if diff := cmp.Diff(before, dev.Data()[entryOff:entryOff+sizeDirEntry]); diff != "" {
		t.Errorf("failed RmDir changed the entry (-want +got):\n%s", diff)
	}
	if err := fsys.Rmdir("/d"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir non-empty: %v", err)
	}

	if err := fsys.Remove("/d/f.txt"); err != nil {
		t.Fatal(err)
	}
	if err := dir.RmDir(); err != nil {
		t.Fatal(err)
	}
	if got := dev.Data()[entryOff]; got != dirNameDeleted {
		t.Errorf("entry name byte %#x after RmDir", got)
	}
	if dir.IsOpen() {
		t.Error("handle still open after RmDir")
	}
	if fsys.Exists("/d") {
		t.Error("/d exists after RmDir")
	}
	free, err := fsys.Volume().FreeClusters()
	if err != nil {
		t.Fatal(err)
	}
	if free != fsys.Volume().ClusterCount() {
		t.Errorf("%d clusters still in use", fsys.Volume().ClusterCount()-free)
	}
}

func TestRemoveDenied(t *testing.T) {
	fsys, _ := newFAT16(t)
	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "/f.txt", []byte("x"))
	if err := fsys.Remove("/d"); !errors.Is(err, ErrDenied) {
		t.Errorf("Remove on a directory: %v", err)
	}
	if err := fsys.Rmdir("/f.txt"); !errors.Is(err, ErrNotDir) {
		t.Errorf("Rmdir on a file: %v", err)
	}
	if err := fsys.Remove("/nothere"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Remove missing file: %v", err)
	}
}

func TestRemoveAll(t *testing.T) {
	fsys, _ := newFAT16(t)
	vol := fsys.Volume()
	freeBefore, err := vol.FreeClusters()
	if err != nil {
		t.Fatal(err)
	}
	if err := fsys.Mkdir("/r/s/t"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "/r/a.txt", pattern(700))
	writeFile(t, fsys, "/r/s/b.txt", pattern(1500))
	writeFile(t, fsys, "/keep.txt", []byte("keep"))
	if err := fsys.RemoveAll("/r"); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/r", "/r/a.txt", "/r/s", "/r/s/t"} {
		if fsys.Exists(path) {
			t.Errorf("%s exists after RemoveAll", path)
		}
	}
	if got := string(readFile(t, fsys, "/keep.txt")); got != "keep" {
		t.Errorf("/keep.txt holds %q", got)
	}
	freeAfter, err := vol.FreeClusters()
	if err != nil {
		t.Fatal(err)
	}
	if freeAfter != freeBefore-1 {
		t.Errorf("free clusters: %d before, %d after", freeBefore, freeAfter)
	}

	// Removing root empties it.
	if err := fsys.RemoveAll("/"); err != nil {
		t.Fatal(err)
	}
	if fsys.Exists("/keep.txt") {
		t.Error("/keep.txt survived RemoveAll of root")
	}
	if !fsys.Root().IsOpen() {
		t.Error("root closed by RemoveAll")
	}
}

func TestTimestamp(t *testing.T) {
	fsys, _ := newFAT16(t)
	writeFile(t, fsys, "/ts.txt", nil)
	f, err := fsys.Open("/ts.txt", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ts := time.Date(2021, 3, 4, 5, 6, 7, 500_000_000, time.UTC)
	if err := f.Timestamp(TimestampCreate|TimestampWrite, ts); err != nil {
		t.Fatal(err)
	}
	de, err := f.DirEntry()
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC); !de.CreatedAt().Equal(want) {
		t.Errorf("created %v, want %v", de.CreatedAt(), want)
	}
	// Modification times have two second resolution.
	if want := time.Date(2021, 3, 4, 5, 6, 6, 0, time.UTC); !de.ModTime().Equal(want) {
		t.Errorf("modified %v, want %v", de.ModTime(), want)
	}
	if want := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC); !de.AccessDate().Equal(want) {
		t.Errorf("access date changed to %v", de.AccessDate())
	}
	if err := f.Timestamp(TimestampAccess, time.Date(1979, 12, 31, 0, 0, 0, 0, time.UTC)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("1979: %v", err)
	}
	if err := fsys.Root().Timestamp(TimestampWrite, ts); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("root: %v", err)
	}
}

func TestLs(t *testing.T) {
	fsys, _ := newFAT16(t)
	if err := fsys.Mkdir("/sub/deep"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "/hello.txt", []byte("hello"))
	writeFile(t, fsys, "/sub/a.txt", pattern(1234))
	writeFile(t, fsys, "/gone.txt", nil)
	if err := fsys.Remove("/gone.txt"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		flags LsFlag
		want  string
	}{
		{flags: 0, want: "SUB/\nHELLO.TXT\n"},
		{flags: LsRecursive, want: "SUB/\n  DEEP/\n  A.TXT\nHELLO.TXT\n"},
		{flags: LsSize, want: "SUB/          \nHELLO.TXT      5\n"},
		{flags: LsDate | LsSize, want: "SUB/          2000-01-01 01:00:00\nHELLO.TXT     2000-01-01 01:00:00 5\n"},
		{flags: LsSize | LsRecursive, want: "SUB/          \n  DEEP/         \n  A.TXT          1234\nHELLO.TXT      5\n"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		if err := fsys.Root().Ls(&buf, tc.flags, 0); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tc.want, buf.String()); diff != "" {
			t.Errorf("flags %#x (-want +got):\n%s", tc.flags, diff)
		}
	}
}
