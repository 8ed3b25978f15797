package blockdev

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// IsCompressed reports whether name is a zstd compressed image.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, ".zst")
}

// LoadImage reads the image name into a RAM device. Images ending in .zst
// are decompressed.
func LoadImage(fsys afero.Fs, name string) (*Bytes, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if IsCompressed(name) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", name, err)
	}
	dev, err := BytesFrom(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return dev, nil
}

// SaveImage writes the contents of dev to name, compressing it when the
// name ends in .zst.
func SaveImage(fsys afero.Fs, name string, dev *Bytes) error {
	f, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeImage(f, name, dev.Data()); err != nil {
		f.Close()
		return fmt.Errorf("writing image %s: %w", name, err)
	}
	return f.Close()
}

func writeImage(w io.Writer, name string, data []byte) error {
	if !IsCompressed(name) {
		_, err := w.Write(data)
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
