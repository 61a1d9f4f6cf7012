package export

import (
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

func testImage(w, h int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{shade, uint8(x * 10), uint8(y * 10), 255})
		}
	}
	return img
}

// TestSaveImage verifies each supported image encoder writes a readable file
func TestSaveImage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	img := testImage(8, 6, 100)

	for _, name := range []string{"frame.png", "frame.jpg", "frame.JPEG", "frame.tif"} {
		path := filepath.Join(dir, name)
		if err := SaveImage(path, img, 0); err != nil {
			t.Fatalf("SaveImage %s failed: %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty %s, got %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "frame.tif"))
	if err != nil {
		t.Fatalf("Failed to open tiff: %v", err)
	}
	defer f.Close()
	decoded, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode tiff: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
	}

	if err := SaveImage(filepath.Join(dir, "frame.bmp"), img, 90); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

// TestSaveArray verifies raw frames go through the array containers
func TestSaveArray(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	a, _ := ndarray.NewReal([]int{2, 2}, []float64{1, 2, 3, 4})

	for _, name := range []string{"frame.npy", "frame.mat", "frame.npy.zst"} {
		if !IsArrayPath(name) {
			t.Errorf("Expected %s to be an array path", name)
		}
		if err := SaveArray(filepath.Join(dir, name), a); err != nil {
			t.Errorf("SaveArray %s failed: %v", name, err)
		}
	}
	if IsArrayPath("frame.png") {
		t.Error("Expected png not to be an array path")
	}
}

// TestAnnotate verifies the label strip enlarges the image
func TestAnnotate(t *testing.T) {
	img := testImage(40, 20, 0)
	out := Annotate(img, "REP0/SLC3")
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() <= 20 {
		t.Errorf("Expected taller 40-wide image, got %v", out.Bounds())
	}
	if Annotate(img, "  ") != img {
		t.Error("Expected blank label to return the input")
	}
}

// TestSaveSequence verifies frame naming
func TestSaveSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := filepath.Join(t.TempDir(), "seq")
	frames := []image.Image{testImage(4, 4, 0), testImage(4, 4, 50), testImage(4, 4, 100)}

	paths, err := SaveSequence(dir, frames)
	if err != nil {
		t.Fatalf("SaveSequence failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Expected 3 paths, got %d", len(paths))
	}
	if filepath.Base(paths[2]) != "frame_002.png" {
		t.Errorf("Expected frame_002.png, got %s", filepath.Base(paths[2]))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Expected %s to exist: %v", p, err)
		}
	}
}

// TestSaveAnimation verifies GIF encoding and the delegated video formats
func TestSaveAnimation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	frames := []image.Image{testImage(6, 5, 0), testImage(6, 5, 200)}

	path := filepath.Join(dir, "movie.gif")
	if err := SaveAnimation(path, frames, 10); err != nil {
		t.Fatalf("SaveAnimation failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open gif: %v", err)
	}
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("Failed to decode gif: %v", err)
	}
	if len(anim.Image) != 2 || anim.Delay[0] != 10 {
		t.Errorf("Expected 2 frames at delay 10, got %d frames, delay %v", len(anim.Image), anim.Delay)
	}

	if err := SaveAnimation(filepath.Join(dir, "movie.mp4"), frames, 10); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for mp4, got %v", err)
	}
	if err := SaveAnimation(filepath.Join(dir, "empty.gif"), nil, 10); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}
