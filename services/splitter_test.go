package services

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePanelPNG(t *testing.T, width, height, splitAt int, left, right color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < splitAt {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeCrop(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func assertUniform(t *testing.T, img image.Image, want color.RGBA) {
	t.Helper()
	for _, pt := range []image.Point{
		{0, 0},
		{SplitCropWidth - 1, 0},
		{SplitCropWidth / 2, SplitCropHeight / 2},
		{0, SplitCropHeight - 1},
		{SplitCropWidth - 1, SplitCropHeight - 1},
	} {
		r, g, b, a := img.At(pt.X, pt.Y).RGBA()
		got := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
		assert.Equal(t, want, got, "pixel at %v", pt)
	}
}

func TestSplitPanelHalves(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	panel := encodePanelPNG(t, 1536, 1024, 768, red, blue)

	left, right, err := SplitPanel(panel)
	require.NoError(t, err)

	leftImg := decodeCrop(t, left)
	rightImg := decodeCrop(t, right)
	assert.Equal(t, SplitCropWidth, leftImg.Bounds().Dx())
	assert.Equal(t, SplitCropHeight, leftImg.Bounds().Dy())
	assert.Equal(t, SplitCropWidth, rightImg.Bounds().Dx())
	assert.Equal(t, SplitCropHeight, rightImg.Bounds().Dy())

	// a 768x1024 half is exactly 3:4, so each crop is a pure color field
	assertUniform(t, leftImg, red)
	assertUniform(t, rightImg, blue)
}

func TestSplitPanelOddWidthLeftBias(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	// 5 columns: the extra column goes to the left half, so the boundary is x=3
	panel := encodePanelPNG(t, 5, 4, 3, red, blue)

	left, right, err := SplitPanel(panel)
	require.NoError(t, err)
	assertUniform(t, decodeCrop(t, left), red)
	assertUniform(t, decodeCrop(t, right), blue)
}

func TestSplitPanelTransparencyBecomesWhite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	left, right, err := SplitPanel(buf.Bytes())
	require.NoError(t, err)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	assertUniform(t, decodeCrop(t, left), white)
	assertUniform(t, decodeCrop(t, right), white)
}

func TestSplitPanelDeterministic(t *testing.T) {
	panel := encodePanelPNG(t, 640, 480, 320, color.RGBA{R: 10, G: 120, B: 30, A: 255}, color.RGBA{R: 200, G: 40, B: 90, A: 255})

	left1, right1, err := SplitPanel(panel)
	require.NoError(t, err)
	left2, right2, err := SplitPanel(panel)
	require.NoError(t, err)
	assert.Equal(t, left1, left2)
	assert.Equal(t, right1, right2)
}

func TestSplitPanelBase64RoundTrip(t *testing.T) {
	panel := encodePanelPNG(t, 1536, 1024, 768, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255})
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(panel)

	left, right, err := SplitPanelBase64(payload)
	require.NoError(t, err)

	leftRaw, err := base64.StdEncoding.DecodeString(left)
	require.NoError(t, err)
	rightRaw, err := base64.StdEncoding.DecodeString(right)
	require.NoError(t, err)
	assert.Equal(t, SplitCropWidth, decodeCrop(t, leftRaw).Bounds().Dx())
	assert.Equal(t, SplitCropHeight, decodeCrop(t, rightRaw).Bounds().Dy())
}

func TestSplitPanelErrors(t *testing.T) {
	_, _, err := SplitPanel([]byte("not a png"))
	assert.ErrorContains(t, err, "failed to decode panel image")

	tiny := encodePanelPNG(t, 1, 1, 1, color.White, color.White)
	_, _, err = SplitPanel(tiny)
	assert.ErrorContains(t, err, "too small to split")

	_, _, err = SplitPanelBase64("%%%")
	assert.ErrorContains(t, err, "failed to decode panel base64")
}
