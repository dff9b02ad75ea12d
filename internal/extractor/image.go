package extractor

import (
	"image"
	"image/draw"
)

// Preprocess prepares a page image for OCR: grayscale conversion followed by
// a linear contrast stretch. Pages whose intensity range is already full, or
// degenerate (a single shade), come back as plain grayscale.
func Preprocess(src image.Image) image.Image {
	return stretchContrast(toGray(src))
}

func toGray(src image.Image) *image.Gray {
	if gray, ok := src.(*image.Gray); ok {
		return gray
	}
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray
}

func stretchContrast(gray *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo >= hi || (lo == 0 && hi == 255) {
		return gray
	}

	scale := 255.0 / float64(hi-lo)
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		out.Pix[i] = uint8(float64(v-lo)*scale + 0.5)
	}
	return out
}
