// Package preprocess implements the deterministic image transform applied
// before embedding: decode, reduce to a lightness channel, replicate to
// three channels, resize to a fixed width, and re-encode.
package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	// Registered decoders. Encoding is always PNG or JPEG.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/sokkuri/internal/errs"
	"golang.org/x/image/draw"
)

// DefaultTargetWidth is the output width the embedding model was tuned on.
const DefaultTargetWidth = 585

const jpegQuality = 90

// Result is a preprocessed image ready for storage.
type Result struct {
	Bytes       []byte
	ContentType string
	// Ext is the processed-key extension ("png" or "jpeg").
	Ext    string
	Width  int
	Height int
}

// Transform applies the preprocessing rules to raw image bytes.
// Undecodable input yields a content error; downstream stages must not run
// on rejection. Output encoding is PNG when the source has transparency,
// JPEG otherwise. Exact byte identity across encoder versions is not
// guaranteed; the pixel geometry and channel rules are.
func Transform(data []byte, targetWidth int) (*Result, error) {
	if targetWidth <= 0 {
		targetWidth = DefaultTargetWidth
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.New(errs.KindContent, "preprocess.Transform", "object is not a valid image")
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, errs.New(errs.KindContent, "preprocess.Transform", "image has invalid dimensions")
	}

	rgb := replicate(lightness(src))

	if w != targetWidth {
		newH := int(math.Round(float64(h) * float64(targetWidth) / float64(w)))
		if newH < 1 {
			newH = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, newH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), rgb, rgb.Bounds(), draw.Over, nil)
		rgb = scaled
	}

	var buf bytes.Buffer
	result := &Result{Width: rgb.Bounds().Dx(), Height: rgb.Bounds().Dy()}
	if hasAlpha(src) {
		if err := png.Encode(&buf, rgb); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "preprocess.Transform", err)
		}
		result.ContentType, result.Ext = "image/png", "png"
	} else {
		if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "preprocess.Transform", err)
		}
		result.ContentType, result.Ext = "image/jpeg", "jpeg"
	}
	result.Bytes = buf.Bytes()
	return result, nil
}

// lightness reduces src to a single channel. Sources that are already
// grayscale keep their pixel values directly; everything else goes through
// the CIE L* decomposition. Both paths are fixed per build, so the choice
// is deterministic for a given input.
func lightness(src image.Image) *image.Gray {
	bounds := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	switch g := src.(type) {
	case *image.Gray:
		for y := 0; y < bounds.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+bounds.Dx()],
				g.Pix[(y+bounds.Min.Y)*g.Stride+bounds.Min.X:])
		}
		return out
	case *image.Gray16:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				out.SetGray(x-bounds.Min.X, y-bounds.Min.Y,
					color.Gray{Y: uint8(g.Gray16At(x, y).Y >> 8)})
			}
		}
		return out
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: lstar(r, g, b)})
		}
	}
	return out
}

// lstar computes the CIE L* lightness of a 16-bit sRGB triple, scaled to 0-255.
func lstar(r16, g16, b16 uint32) uint8 {
	y := 0.2126*srgbToLinear(float64(r16)/65535.0) +
		0.7152*srgbToLinear(float64(g16)/65535.0) +
		0.0722*srgbToLinear(float64(b16)/65535.0)
	var l float64
	if y > 0.008856 {
		l = 116.0*math.Cbrt(y) - 16.0
	} else {
		l = 903.3 * y
	}
	v := math.Round(l / 100.0 * 255.0)
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint8(v)
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// replicate copies the single channel into R, G, and B, preserving the
// 3-channel shape without reintroducing color.
func replicate(gray *image.Gray) *image.RGBA {
	bounds := gray.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// hasAlpha reports whether the source can carry transparency. The check is
// on the decoded image, so the same input bytes always pick the same encoder.
func hasAlpha(src image.Image) bool {
	if o, ok := src.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
