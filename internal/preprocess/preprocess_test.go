package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/hyperjump/sokkuri/internal/errs"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestTransform_resizesToTargetWidth(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantHeight int
	}{
		{"1200x800 screenshot", 1200, 800, 390},
		{"portrait 600x1200", 600, 1200, 1170},
		{"already target width", 585, 300, 300},
		{"tiny", 10, 10, 585}, // 10 -> 585 scales height by the same factor
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeJPEG(t, solidRGBA(tt.w, tt.h, color.RGBA{R: 120, G: 80, B: 200, A: 255}))
			res, err := Transform(data, DefaultTargetWidth)
			if err != nil {
				t.Fatal(err)
			}
			if res.Width != DefaultTargetWidth {
				t.Errorf("width = %d, want %d", res.Width, DefaultTargetWidth)
			}
			if res.Height != tt.wantHeight {
				t.Errorf("height = %d, want %d", res.Height, tt.wantHeight)
			}
			decoded, _, err := image.Decode(bytes.NewReader(res.Bytes))
			if err != nil {
				t.Fatalf("output must be decodable: %v", err)
			}
			if decoded.Bounds().Dx() != res.Width || decoded.Bounds().Dy() != res.Height {
				t.Errorf("encoded size %v does not match reported %dx%d", decoded.Bounds(), res.Width, res.Height)
			}
		})
	}
}

func TestTransform_rejectsNonImage(t *testing.T) {
	_, err := Transform([]byte("this is plain text, not pixels"), DefaultTargetWidth)
	if err == nil {
		t.Fatal("expected content error")
	}
	if !errs.Is(err, errs.KindContent) {
		t.Errorf("kind = %v, want content", errs.KindOf(err))
	}
}

func TestTransform_opaqueBecomesJPEG(t *testing.T) {
	data := encodePNG(t, solidRGBA(700, 700, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	res, err := Transform(data, DefaultTargetWidth)
	if err != nil {
		t.Fatal(err)
	}
	if res.ContentType != "image/jpeg" || res.Ext != "jpeg" {
		t.Errorf("opaque source should encode as JPEG, got %s/%s", res.ContentType, res.Ext)
	}
}

func TestTransform_transparentBecomesPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 700, 700))
	for y := 0; y < 700; y++ {
		for x := 0; x < 700; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
		}
	}
	res, err := Transform(encodePNG(t, img), DefaultTargetWidth)
	if err != nil {
		t.Fatal(err)
	}
	if res.ContentType != "image/png" || res.Ext != "png" {
		t.Errorf("transparent source should encode as PNG, got %s/%s", res.ContentType, res.Ext)
	}
}

func TestTransform_channelsAreReplicatedLuma(t *testing.T) {
	// A saturated color must come out with R==G==B (single lightness channel
	// copied into all three).
	data := encodePNG(t, solidRGBA(585, 100, color.RGBA{R: 200, G: 40, B: 40, A: 255}))
	res, err := Transform(data, DefaultTargetWidth)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(res.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := decoded.At(50, 50).RGBA()
	// JPEG chroma subsampling can wiggle values slightly.
	if diff16(r, g) > 520 || diff16(g, b) > 520 {
		t.Errorf("channels not replicated: r=%d g=%d b=%d", r, g, b)
	}
}

func TestTransform_grayscaleSourceKeptDirectly(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 585, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 585; x++ {
			img.SetGray(x, y, color.Gray{Y: 77})
		}
	}
	res, err := Transform(encodePNG(t, img), DefaultTargetWidth)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(res.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := decoded.At(10, 10).RGBA()
	if diff16(r, 77<<8|77) > 520 {
		t.Errorf("grayscale pixel changed: got %d, want ~%d", r, 77<<8|77)
	}
}

func diff16(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
