package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// TemplateSize is the edge length in pixels of a normalized face template.
// Every template in the gallery and every probe is brought to this size
// before comparison, so pixelwise operations never have to handle
// mismatched dimensions.
const TemplateSize = 100

// Template is a normalized grayscale face image of TemplateSize x
// TemplateSize pixels, stored row-major. It is the unit of comparison for
// the matcher: one template per enrolled identity, one per probe.
type Template struct {
	Pixels []uint8
}

// Normalize converts an arbitrary cropped face image into a Template:
// grayscale conversion followed by a bilinear resize to the fixed template
// dimensions. The input image is not modified.
func Normalize(img image.Image) *Template {
	dst := image.NewGray(image.Rect(0, 0, TemplateSize, TemplateSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	// image.Gray guarantees Stride == width for a zero-origin rectangle,
	// so the pixel buffer can be taken as-is.
	pixels := make([]uint8, len(dst.Pix))
	copy(pixels, dst.Pix)

	return &Template{Pixels: pixels}
}

// FromPixels builds a Template from a raw row-major grayscale buffer.
// It fails if the buffer does not hold exactly TemplateSize*TemplateSize
// bytes; callers decoding persisted galleries use this to reject
// truncated data.
func FromPixels(pixels []uint8) (*Template, error) {
	if len(pixels) != TemplateSize*TemplateSize {
		return nil, fmt.Errorf("invalid template buffer: got %d bytes, want %d", len(pixels), TemplateSize*TemplateSize)
	}
	t := &Template{Pixels: make([]uint8, len(pixels))}
	copy(t.Pixels, pixels)
	return t, nil
}

// Clone returns an independent copy of the template.
func (t *Template) Clone() *Template {
	pixels := make([]uint8, len(t.Pixels))
	copy(pixels, t.Pixels)
	return &Template{Pixels: pixels}
}

// Equal reports whether two templates are bit-identical.
func (t *Template) Equal(other *Template) bool {
	if other == nil || len(t.Pixels) != len(other.Pixels) {
		return false
	}
	for i := range t.Pixels {
		if t.Pixels[i] != other.Pixels[i] {
			return false
		}
	}
	return true
}

// MeanAbsDiff computes the mean absolute pixelwise difference between two
// templates on the 0-255 intensity scale. Both templates must come out of
// Normalize or FromPixels; a length mismatch is a programming error and
// panics rather than being reported as a runtime condition.
func (t *Template) MeanAbsDiff(other *Template) float64 {
	if len(t.Pixels) != len(other.Pixels) {
		panic(fmt.Sprintf("template dimension mismatch: %d vs %d", len(t.Pixels), len(other.Pixels)))
	}
	var sum uint64
	for i := range t.Pixels {
		d := int(t.Pixels[i]) - int(other.Pixels[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return float64(sum) / float64(len(t.Pixels))
}

// Gray renders the template back into an image.Gray, used when a stored
// template needs to be inspected or re-encoded for display.
func (t *Template) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, TemplateSize, TemplateSize))
	copy(img.Pix, t.Pixels)
	return img
}
