package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/soypat/sdfat"
	"github.com/spf13/afero"
)

func runCmd(t *testing.T, fsys afero.Fs, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	err := run(fsys, args, &stdout, io.Discard)
	return stdout.String(), err
}

func mustRun(t *testing.T, fsys afero.Fs, args ...string) string {
	t.Helper()
	out, err := runCmd(t, fsys, args...)
	if err != nil {
		t.Fatalf("fatimg %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestImageSession(t *testing.T) {
	for _, image := range []string{"/card.img", "/card.img.zst"} {
		t.Run(image, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			mustRun(t, fsys, "-i", image, "mkfs", "--blocks", "5073", "--fat", "16", "--cluster-size", "1", "--label", "CARD")
			if err := afero.WriteFile(fsys, "/local.txt", []byte("hello from the host\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			mustRun(t, fsys, "-i", image, "mkdir", "/dir/sub")
			mustRun(t, fsys, "-i", image, "put", "/local.txt", "/dir/hello.txt")

			if got := mustRun(t, fsys, "-i", image, "cat", "/dir/hello.txt"); got != "hello from the host\n" {
				t.Errorf("cat: %q", got)
			}
			if got := mustRun(t, fsys, "-i", image, "ls", "-R"); got != "DIR/\n  SUB/\n  HELLO.TXT\n" {
				t.Errorf("ls -R: %q", got)
			}
			info := mustRun(t, fsys, "-i", image, "info")
			for _, want := range []string{"format:         FAT16", "clusters:       5000", "free clusters:  4997",
				"boot sector:\n", "\nFSType:FAT16\n", "\nVolumeLabel:CARD\n", "\nTotalSectors:5073\n", "\nVolumeOffset:0\n"} {
				if !strings.Contains(info, want) {
					t.Errorf("info missing %q:\n%s", want, info)
				}
			}

			mustRun(t, fsys, "-i", image, "rm", "/dir/hello.txt")
			if _, err := runCmd(t, fsys, "-i", image, "cat", "/dir/hello.txt"); !errors.Is(err, sdfat.ErrNotExist) {
				t.Errorf("cat after rm: %v", err)
			}
			if _, err := runCmd(t, fsys, "-i", image, "rmdir", "/dir"); !errors.Is(err, sdfat.ErrNotEmpty) {
				t.Errorf("rmdir of non-empty directory: %v", err)
			}
			mustRun(t, fsys, "-i", image, "rmrf", "/dir")
			if got := mustRun(t, fsys, "-i", image, "ls"); got != "" {
				t.Errorf("ls after rmrf: %q", got)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	mustRun(t, fsys, "-i", "/sd.img", "mkfs", "--blocks", "5136", "--mbr", "--fat", "16")
	cfg := "image: /sd.img\npartition: 1\nreadonly: true\nlog_level: error\n"
	if err := afero.WriteFile(fsys, "/fatimg.yaml", []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCmd(t, fsys, "--config", "/fatimg.yaml", "mkdir", "/x"); err == nil || !strings.Contains(err.Error(), "read only") {
		t.Errorf("mkdir on read only config: %v", err)
	}
	// Flags override the file.
	mustRun(t, fsys, "--config", "/fatimg.yaml", "--readonly=false", "mkdir", "/x")
	if got := mustRun(t, fsys, "--config", "/fatimg.yaml", "ls"); got != "X/\n" {
		t.Errorf("ls: %q", got)
	}
	if _, err := runCmd(t, fsys, "--config", "/fatimg.yaml", "-p", "0", "ls"); !errors.Is(err, sdfat.ErrNoFilesystem) {
		t.Errorf("mounting the MBR as a volume: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/bad.yaml", []byte("log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		desc string
		args []string
		want string
	}{
		{"no command", []string{"-i", "/x.img"}, "missing command"},
		{"no image", []string{"ls"}, "no image"},
		{"unknown command", []string{"-i", "/x.img", "frob"}, "unknown command"},
		{"argument count", []string{"-i", "/x.img", "cat"}, "takes 1 arguments"},
		{"missing config", []string{"--config", "/none.yaml", "ls"}, "does not exist"},
		{"bad log level", []string{"--config", "/bad.yaml", "-i", "/x.img", "ls"}, "log_level"},
		{"mkfs size", []string{"-i", "/x.img", "mkfs"}, "--blocks"},
		{"mkfs width", []string{"-i", "/x.img", "mkfs", "--blocks", "5073", "--fat", "12"}, "unsupported FAT width"},
	}
	for _, tc := range tests {
		_, err := runCmd(t, fsys, tc.args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: got %v, want error containing %q", tc.desc, err, tc.want)
		}
	}
}
