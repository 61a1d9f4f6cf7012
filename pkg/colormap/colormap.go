// Package colormap maps normalized scalar values and complex phase values to
// display colours.
package colormap

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"
)

// ErrUnknownColormap is returned by Lookup for an unregistered name.
var ErrUnknownColormap = errors.New("unknown colormap")

// Colormap maps t in [0, 1] to a colour. Values outside are clamped.
type Colormap interface {
	At(t float64) color.Color
}

// Linear interpolates between evenly spaced control colours.
type Linear struct {
	stops []color.RGBA
}

// NewLinear builds a colormap from at least two control colours.
func NewLinear(stops ...color.RGBA) Linear {
	if len(stops) == 1 {
		stops = append(stops, stops[0])
	}
	return Linear{stops: stops}
}

// At returns the colour at position t.
func (c Linear) At(t float64) color.Color {
	return c.RGBA(t)
}

// RGBA is At without the interface conversion.
func (c Linear) RGBA(t float64) color.RGBA {
	last := len(c.stops) - 1
	if math.IsNaN(t) || t <= 0 {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[last]
	}
	pos := t * float64(last)
	i := int(pos)
	frac := pos - float64(i)
	a, b := c.stops[i], c.stops[i+1]
	return color.RGBA{
		R: lerp8(a.R, b.R, frac),
		G: lerp8(a.G, b.G, frac),
		B: lerp8(a.B, b.B, frac),
		A: 255,
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + t*(float64(b)-float64(a))))
}

// Gray is the default black-to-white map.
var Gray = NewLinear(color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255})

// Viridis approximates matplotlib's viridis.
var Viridis = NewLinear(
	color.RGBA{68, 1, 84, 255},
	color.RGBA{72, 35, 116, 255},
	color.RGBA{64, 67, 135, 255},
	color.RGBA{52, 94, 141, 255},
	color.RGBA{41, 120, 142, 255},
	color.RGBA{32, 144, 140, 255},
	color.RGBA{34, 167, 132, 255},
	color.RGBA{68, 190, 112, 255},
	color.RGBA{121, 209, 81, 255},
	color.RGBA{189, 222, 38, 255},
	color.RGBA{253, 231, 37, 255},
)

// Plasma approximates matplotlib's plasma.
var Plasma = NewLinear(
	color.RGBA{13, 8, 135, 255},
	color.RGBA{75, 3, 161, 255},
	color.RGBA{125, 3, 168, 255},
	color.RGBA{168, 34, 150, 255},
	color.RGBA{203, 70, 121, 255},
	color.RGBA{229, 107, 93, 255},
	color.RGBA{248, 148, 65, 255},
	color.RGBA{253, 195, 40, 255},
	color.RGBA{240, 249, 33, 255},
)

// Inferno approximates matplotlib's inferno.
var Inferno = NewLinear(
	color.RGBA{0, 0, 4, 255},
	color.RGBA{40, 11, 84, 255},
	color.RGBA{101, 21, 110, 255},
	color.RGBA{159, 42, 99, 255},
	color.RGBA{212, 72, 66, 255},
	color.RGBA{245, 125, 21, 255},
	color.RGBA{250, 193, 39, 255},
	color.RGBA{252, 255, 164, 255},
)

// Magma approximates matplotlib's magma.
var Magma = NewLinear(
	color.RGBA{0, 0, 4, 255},
	color.RGBA{28, 16, 68, 255},
	color.RGBA{79, 18, 123, 255},
	color.RGBA{129, 37, 129, 255},
	color.RGBA{181, 54, 122, 255},
	color.RGBA{229, 80, 100, 255},
	color.RGBA{251, 135, 97, 255},
	color.RGBA{254, 194, 135, 255},
	color.RGBA{252, 253, 191, 255},
)

var registry = map[string]Colormap{
	"gray":    Gray,
	"viridis": Viridis,
	"plasma":  Plasma,
	"inferno": Inferno,
	"magma":   Magma,
}

// Lookup returns the colormap registered under name (case-insensitive).
func Lookup(name string) (Colormap, error) {
	if name == "" || strings.EqualFold(name, "grey") {
		return Gray, nil
	}
	if cm, ok := registry[strings.ToLower(name)]; ok {
		return cm, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownColormap, name)
}

// Names lists the registered colormaps in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
