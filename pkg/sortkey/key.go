// Package sortkey provides the scalar keys pixels are ordered and thresholded by.
// A key is a pure function of a pixel's color returning a value in [0, 1].
package sortkey

import (
	"image/color"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrUnknownKey is returned by Lookup for a name with no registered key
var ErrUnknownKey = errors.New("unknown sort key")

// Func derives the sort key of a single pixel. Implementations must be
// deterministic: the same color always yields the same key.
type Func func(c color.Color) float32

// Default is the key used when none is configured
const Default = "luminance"

var registry = map[string]Func{
	"luminance": Luminance,
	"luma601":   Luma601,
	"average":   Average,
	"lightness": Lightness,
	"value":     Value,
	"red":       channel(0),
	"green":     channel(1),
	"blue":      channel(2),
}

// Lookup returns the key registered under name
func Lookup(name string) (Func, error) {
	if name == "" {
		name = Default
	}
	fn, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKey, "%q (available: %v)", name, Names())
	}
	return fn, nil
}

// Names lists the registered keys in alphabetical order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalized returns the non-premultiplied channels of c scaled to [0, 1]
func normalized(c color.Color) (r, g, b float32) {
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	return float32(n.R) / 65535, float32(n.G) / 65535, float32(n.B) / 65535
}

// Luminance weights the channels with the Rec. 709 coefficients
func Luminance(c color.Color) float32 {
	r, g, b := normalized(c)
	return clamp(0.2126*r + 0.7152*g + 0.0722*b)
}

// Luma601 weights the channels with the Rec. 601 coefficients
func Luma601(c color.Color) float32 {
	r, g, b := normalized(c)
	return clamp(0.299*r + 0.587*g + 0.114*b)
}

// Average is the unweighted mean of the three channels
func Average(c color.Color) float32 {
	r, g, b := normalized(c)
	return clamp((r + g + b) / 3)
}

// Lightness is the HSL lightness, the midpoint of the largest and smallest channel
func Lightness(c color.Color) float32 {
	r, g, b := normalized(c)
	hi := math32.Max(r, math32.Max(g, b))
	lo := math32.Min(r, math32.Min(g, b))
	return clamp((hi + lo) / 2)
}

// Value is the HSV value, the largest channel
func Value(c color.Color) float32 {
	r, g, b := normalized(c)
	return clamp(math32.Max(r, math32.Max(g, b)))
}

func channel(idx int) Func {
	return func(c color.Color) float32 {
		r, g, b := normalized(c)
		return [3]float32{r, g, b}[idx]
	}
}

// clamp keeps rounding error in the weighted sums from leaving [0, 1]
func clamp(v float32) float32 {
	return math32.Min(1, math32.Max(0, v))
}
