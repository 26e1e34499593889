package surface

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Icon dimensions for system tray.
const iconSize = 22

// Pre-generated PNG icons for the tray.
var (
	iconIdlePNG    []byte
	iconRunningPNG []byte
)

func init() {
	iconIdlePNG = generateTrafficIcon(color.RGBA{128, 128, 128, 255})    // Gray
	iconRunningPNG = generateTrafficIcon(color.RGBA{76, 175, 80, 255}) // Green
}

// generateTrafficIcon draws an up arrow and a down arrow side by side.
func generateTrafficIcon(c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))

	const (
		top    = 3
		bottom = 18
		head   = 4
	)

	// Upload arrow on the left, pointing up.
	upX := 6
	for y := top; y <= bottom; y++ {
		img.Set(upX, y, c)
		img.Set(upX+1, y, c)
	}
	for i := 0; i < head; i++ {
		for x := upX - i; x <= upX+1+i; x++ {
			img.Set(x, top+i, c)
		}
	}

	// Download arrow on the right, pointing down.
	downX := 14
	for y := top; y <= bottom; y++ {
		img.Set(downX, y, c)
		img.Set(downX+1, y, c)
	}
	for i := 0; i < head; i++ {
		for x := downX - i; x <= downX+1+i; x++ {
			img.Set(x, bottom-i, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
