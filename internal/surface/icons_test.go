package surface

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTrafficIcon_ReturnsValidPNG(t *testing.T) {
	data := generateTrafficIcon(color.RGBA{255, 140, 0, 255})
	require.NotEmpty(t, data)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "should be valid PNG")
	assert.Equal(t, iconSize, img.Bounds().Dx())
	assert.Equal(t, iconSize, img.Bounds().Dy())

	_, _, _, a := img.At(6, 10).RGBA()
	assert.NotZero(t, a, "upload arrow shaft should be drawn")
	_, _, _, a = img.At(0, 0).RGBA()
	assert.Zero(t, a, "corner should be transparent")
}

func TestPreGeneratedIcons_AreValid(t *testing.T) {
	for name, data := range map[string][]byte{"idle": iconIdlePNG, "running": iconRunningPNG} {
		t.Run(name, func(t *testing.T) {
			require.NotEmpty(t, data)
			_, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
		})
	}
}
