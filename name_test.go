package sdfat

import (
	"errors"
	"testing"
)

func TestMake83Name(t *testing.T) {
	tests := []struct {
		name    string
		want    string // Raw 11 byte form.
		wantErr bool
	}{
		{name: "README.TXT", want: "README  TXT"},
		{name: "readme.txt", want: "README  TXT"},
		{name: "a", want: "A          "},
		{name: "MAKEFILE", want: "MAKEFILE   "},
		{name: "x.c", want: "X       C  "},
		{name: "12345678.123", want: "12345678123"},
		{name: "A~1.$$$", want: "A~1     $$$"},
		{name: "a.b.c", wantErr: true},
		{name: "toolongname.txt", wantErr: true},
		{name: "name.text", wantErr: true},
		{name: "", wantErr: true},
		{name: ".", wantErr: true},
		{name: "..", wantErr: true},
		{name: ".txt", wantErr: true},
		{name: "with space", wantErr: true},
		{name: "pipe|d", wantErr: true},
		{name: "q?", wantErr: true},
		{name: "tab\t", wantErr: true},
		{name: "é.txt", wantErr: true},
	}
	for _, tc := range tests {
		sn, err := Make83Name(tc.name)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("%q: got %q, %v, want ErrInvalidName", tc.name, sn[:], err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.name, err)
		} else if string(sn[:]) != tc.want {
			t.Errorf("%q: got %q, want %q", tc.name, sn[:], tc.want)
		}
	}
}

func TestShortNameString(t *testing.T) {
	tests := []struct {
		sn   string
		want string
	}{
		{sn: "README  TXT", want: "README.TXT"},
		{sn: "MAKEFILE   ", want: "MAKEFILE"},
		{sn: "X       C  ", want: "X.C"},
		{sn: ".          ", want: "."},
		{sn: "..         ", want: ".."},
		{sn: "\x05BC       ", want: "σBC"}, // 0x05 escapes 0xE5.
		{sn: "\x80LE    TXT", want: "ÇLE.TXT"},
	}
	for _, tc := range tests {
		var sn ShortName
		copy(sn[:], tc.sn)
		if got := sn.String(); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.sn, got, tc.want)
		}
	}
}

func TestShortNameRoundTrip(t *testing.T) {
	for _, name := range []string{"README.TXT", "A", "F0.TXT", "12345678.123", "NO_EXT"} {
		sn, err := Make83Name(name)
		if err != nil {
			t.Fatal(err)
		}
		if got := sn.String(); got != name {
			t.Errorf("%s round trips to %s", name, got)
		}
	}
}
