package tiling

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultSimilarity applies when a key colour comes without a similarity.
const DefaultSimilarity = 0.1

// ParseHexColor accepts "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Tolerance maps a 0..1 similarity onto a per-channel distance.
func Tolerance(similarity float64) int {
	if similarity <= 0 {
		return 0
	}
	if similarity >= 1 {
		return 255
	}
	return int(math.Round(similarity * 255))
}

// KeyOut returns a copy of img in which every pixel whose R, G and B each lie
// within tolerance of key is fully transparent.
func KeyOut(img image.Image, key color.NRGBA, tolerance int) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		if near(dst.Pix[i], key.R, tolerance) &&
			near(dst.Pix[i+1], key.G, tolerance) &&
			near(dst.Pix[i+2], key.B, tolerance) {
			dst.Pix[i+3] = 0
		}
	}
	return dst
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
