package export

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoFrames is returned when an animation has nothing to encode.
var ErrNoFrames = errors.New("no frames to export")

// SaveAnimation encodes frames as a looping animated GIF at fps frames per
// second. Video containers are left to external encoders fed by SaveSequence.
func SaveAnimation(path string, frames []image.Image, fps int) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".gif" {
		return fmt.Errorf("%w: %q (write a frame sequence and encode it externally)", ErrUnsupportedFormat, ext)
	}
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		fps = 1
	}
	// GIF delays are in hundredths of a second.
	delay := 100 / fps
	if delay < 2 {
		delay = 2
	}

	anim := &gif.GIF{LoopCount: 0}
	for _, img := range frames {
		b := img.Bounds()
		p := image.NewPaletted(b, palette.Plan9)
		draw.FloydSteinberg.Draw(p, b, img, b.Min)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := gif.EncodeAll(file, anim); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
