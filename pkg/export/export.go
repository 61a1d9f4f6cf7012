// Package export writes rendered frames and raw frame data to disk.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/tiff"

	"github.com/btasdelen/arrview/pkg/arrayio"
	"github.com/btasdelen/arrview/pkg/ndarray"
)

// ErrUnsupportedFormat is returned for extensions no writer handles.
var ErrUnsupportedFormat = arrayio.ErrUnsupportedFormat

// DefaultJPEGQuality is used when SaveImage is given a quality outside 1..100.
const DefaultJPEGQuality = 90

// IsArrayPath reports whether path names a raw-data container rather than an image.
func IsArrayPath(path string) bool {
	return arrayio.DetectFormat(path) != arrayio.FormatUnknown
}

// SaveImage writes img with the encoder picked from the extension: .png,
// .jpg/.jpeg or .tif/.tiff.
func SaveImage(path string, img image.Image, quality int) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		if err := gg.SavePNG(path, img); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		return nil
	case ".jpg", ".jpeg", ".tif", ".tiff":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if ext == ".tif" || ext == ".tiff" {
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	} else {
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// SaveArray writes the raw frame to a .npy, .npy.zst or .mat file.
func SaveArray(path string, a *ndarray.Array) error {
	return arrayio.Save(path, a)
}

// Annotate returns a copy of img with a label strip drawn above it.
func Annotate(img image.Image, label string) image.Image {
	if strings.TrimSpace(label) == "" {
		return img
	}
	face := basicfont.Face7x13
	strip := face.Metrics().Height.Ceil() + 6

	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy()+strip)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.DrawImage(img, 0, strip)

	dc.SetFontFace(face)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(label, float64(b.Dx())/2, float64(strip)/2, 0.5, 0.5)
	return dc.Image()
}

// SaveSequence writes frames as frame_000.png, frame_001.png, ... into dir and
// returns the written paths.
func SaveSequence(dir string, frames []image.Image) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	paths := make([]string, 0, len(frames))
	for i, img := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if err := gg.SavePNG(path, img); err != nil {
			return paths, fmt.Errorf("failed to save frame %d: %w", i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
