package receipt

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/internal/core"
)

func sample() core.FarmerRecord {
	paid := core.MustDecimal("1500")
	return core.FarmerRecord{
		ID: "f1", BillNo: 1001, Name: "Ramesh  Patil", Date: core.NewDate(2024, 1, 15),
		Contact: "9876543210", Place: "Nashik", Crop: "Paddy",
		Acres: core.MustDecimal("2.5"), Rate: core.MustDecimal("1200"), Total: core.MustDecimal("3000"),
		PaidAmount: &paid,
	}
}

func TestLines(t *testing.T) {
	lines := Lines(sample())
	assert.Contains(t, lines, "Bill No: #1001")
	assert.Contains(t, lines, "Date: 15/01/2024")
	assert.Contains(t, lines, "Total: Rs. 3,000")
	assert.Contains(t, lines, "Balance: Rs. 1,500")

	r := sample()
	r.BillNo = 0
	r.Crop = ""
	r.IsSettled = true
	lines = Lines(r)
	assert.Contains(t, lines, "Bill No: #N/A")
	assert.Contains(t, lines, "Crop: -")
	assert.Contains(t, lines, "Balance: Rs. 1,500 (Settled)")
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, width, b.Dx())
	assert.Equal(t, 2*margin+len(Lines(sample()))*lineHeight, b.Dy())

	// Corners stay white, the heading is drawn somewhere in the top band.
	r, g, bl, _ := img.At(0, 0).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, bl})
	drawn := false
	for x := 0; x < width && !drawn; x++ {
		for y := margin; y < margin+lineHeight; y++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r != 0xffff {
				drawn = true
				break
			}
		}
	}
	assert.True(t, drawn, "heading pixels expected")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Receipt_Ramesh_Patil.png", FileName(sample()))
}
