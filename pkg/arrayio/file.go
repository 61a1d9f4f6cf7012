package arrayio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

// ErrUnsupportedFormat is returned for file extensions without a codec.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format identifies an array container by its file extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatNPY
	FormatNPYZstd
	FormatMAT
)

// DetectFormat maps a path to its container format.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".npy.zst"):
		return FormatNPYZstd
	case filepath.Ext(lower) == ".npy":
		return FormatNPY
	case filepath.Ext(lower) == ".mat":
		return FormatMAT
	}
	return FormatUnknown
}

// Load reads an array from a .npy or .npy.zst file.
func Load(path string) (*ndarray.Array, error) {
	format := DetectFormat(path)
	if format != FormatNPY && format != FormatNPYZstd {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if format == FormatNPYZstd {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	a, err := ReadNPY(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return a, nil
}

// Save writes a to path, choosing the container from the extension: .npy,
// .npy.zst or .mat (variable "data").
func Save(path string, a *ndarray.Array) error {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch format {
	case FormatNPY:
		err = WriteNPY(f, a)
	case FormatNPYZstd:
		err = writeCompressed(f, a)
	case FormatMAT:
		err = WriteMAT(f, DefaultMATVariable, a)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeCompressed(w io.Writer, a *ndarray.Array) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := WriteNPY(enc, a); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
