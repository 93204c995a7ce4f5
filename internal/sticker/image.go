package sticker

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// maxEdge bounds the longest side of a stored sticker.
const maxEdge = 128

// normalize shrinks oversized images so the longest edge fits maxEdge,
// keeping the source format. Animated GIFs keep every frame. Images
// already within bounds pass through untouched.
func normalize(data []byte) ([]byte, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	if format == "gif" {
		return normalizeGIF(data)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return data, ext(format), nil
	}

	nw, nh := fit(w, h)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, nil)
	default:
		err = png.Encode(&buf, dst)
		format = "png"
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), ext(format), nil
}

func normalizeGIF(data []byte) ([]byte, string, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode gif: %w", err)
	}
	w, h := g.Config.Width, g.Config.Height
	if w <= maxEdge && h <= maxEdge {
		return data, "gif", nil
	}

	nw, nh := fit(w, h)
	for i, frame := range g.Image {
		// Frames may cover only part of the canvas at an offset, so
		// each one maps its own bounds onto the shrunk canvas.
		fb := frame.Bounds()
		dst := image.Rect(
			fb.Min.X*nw/w, fb.Min.Y*nh/h,
			fb.Max.X*nw/w, fb.Max.Y*nh/h,
		)
		if dst.Empty() {
			dst = image.Rect(dst.Min.X, dst.Min.Y, dst.Min.X+1, dst.Min.Y+1)
		}
		scaled := image.NewPaletted(dst, frame.Palette)
		draw.NearestNeighbor.Scale(scaled, dst, frame, fb, draw.Src, nil)
		g.Image[i] = scaled
	}
	g.Config.Width, g.Config.Height = nw, nh

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, "", fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), "gif", nil
}

// fit scales (w,h) down so the longest edge equals maxEdge.
func fit(w, h int) (int, int) {
	if w >= h {
		nh := h * maxEdge / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := w * maxEdge / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}

func ext(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	default:
		return format
	}
}
