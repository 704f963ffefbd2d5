package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// Split crops are fixed 3:4 portrait frames for the storefront.
const (
	SplitCropWidth  = 900
	SplitCropHeight = 1200
)

// SplitPanel decodes a 2-up panel PNG and returns centered 3:4 crops of the
// left and right halves, each rendered onto a 900x1200 white canvas. The
// operation is deterministic: same input bytes, same output bytes.
func SplitPanel(panelPNG []byte) (left []byte, right []byte, err error) {
	img, _, err := image.Decode(bytes.NewReader(panelPNG))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode panel image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width < 2 || height < 1 {
		return nil, nil, fmt.Errorf("panel image too small to split: %dx%d", width, height)
	}

	// odd widths bias the extra column to the left half
	halfW := width / 2
	leftRect := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+width-halfW, bounds.Max.Y)
	rightRect := image.Rect(bounds.Min.X+width-halfW, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)

	left, err = cropToPortrait(img, leftRect)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to crop left half: %w", err)
	}
	right, err = cropToPortrait(img, rightRect)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to crop right half: %w", err)
	}
	return left, right, nil
}

// SplitFlatPanel is the flat front/back variant: identical geometry, the left
// half is the front lay-flat and the right half the back.
func SplitFlatPanel(panelPNG []byte) (front []byte, back []byte, err error) {
	return SplitPanel(panelPNG)
}

// SplitPanelBase64 wraps SplitPanel for base64 payloads as exchanged with the
// generation endpoint, stripping any data-URL prefix first.
func SplitPanelBase64(panelBase64 string) (left string, right string, err error) {
	raw, err := base64.StdEncoding.DecodeString(StripDataURLPrefix(panelBase64))
	if err != nil {
		return "", "", fmt.Errorf("failed to decode panel base64: %w", err)
	}
	leftPNG, rightPNG, err := SplitPanel(raw)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(leftPNG), base64.StdEncoding.EncodeToString(rightPNG), nil
}

// cropToPortrait computes the centered sub-rectangle of half that matches the
// 3:4 target ratio, then draws it scaled onto the fixed white canvas.
func cropToPortrait(img image.Image, half image.Rectangle) ([]byte, error) {
	halfW := half.Dx()
	halfH := half.Dy()

	// force the half to the target aspect ratio with a centered crop:
	// wider than 3:4 crops width, narrower crops height
	cropW := halfW
	cropH := halfH
	if halfW*SplitCropHeight > halfH*SplitCropWidth {
		cropW = halfH * SplitCropWidth / SplitCropHeight
	} else {
		cropH = halfW * SplitCropHeight / SplitCropWidth
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	x0 := half.Min.X + (halfW-cropW)/2
	y0 := half.Min.Y + (halfH-cropH)/2
	src := image.Rect(x0, y0, x0+cropW, y0+cropH)

	canvas := image.NewRGBA(image.Rect(0, 0, SplitCropWidth, SplitCropHeight))
	// white fill first so undersized or transparent source area reads white
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	scaleDraw(canvas, img, src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleDraw maps the source rectangle onto the full canvas with nearest
// neighbour sampling, compositing over the white fill so source transparency
// becomes white. Nearest keeps the operation integer-exact and therefore
// byte-for-byte reproducible across runs.
func scaleDraw(dst *image.RGBA, src image.Image, srcRect image.Rectangle) {
	dstW := dst.Bounds().Dx()
	dstH := dst.Bounds().Dy()
	srcW := srcRect.Dx()
	srcH := srcRect.Dy()
	for y := 0; y < dstH; y++ {
		sy := srcRect.Min.Y + y*srcH/dstH
		for x := 0; x < dstW; x++ {
			sx := srcRect.Min.X + x*srcW/dstW
			r, g, b, a := src.At(sx, sy).RGBA()
			if a == 0xffff {
				dst.Set(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
				continue
			}
			// blend premultiplied source over white
			blend := func(c uint32) uint8 { return uint8((c + (0xffff - a)) >> 8) }
			dst.Set(x, y, color.RGBA{R: blend(r), G: blend(g), B: blend(b), A: 255})
		}
	}
}
