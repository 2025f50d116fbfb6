package screen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderChart(t *testing.T) {
	series := makeSeries("AAA", rising(100, 1, 60))

	png, err := RenderChart(series, "sma", 20)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	png, err = RenderChart(series, "", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderChart_TooShort(t *testing.T) {
	_, err := RenderChart(makeSeries("AAA", []float64{1}), "sma", 20)
	assert.Error(t, err)
}
