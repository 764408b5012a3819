// Package receipt draws a one-bill PNG receipt.
package receipt

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"regexp"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"harvester/internal/core"
)

const (
	width      = 400
	margin     = 30
	lineHeight = 22
)

var (
	white      = color.RGBA{0xff, 0xff, 0xff, 0xff}
	ink        = color.RGBA{0x33, 0x33, 0x33, 0xff}
	muted      = color.RGBA{0x66, 0x66, 0x66, 0xff}
	faint      = color.RGBA{0xee, 0xee, 0xee, 0xff}
	green      = color.RGBA{0x10, 0xb9, 0x81, 0xff}
	red        = color.RGBA{0xef, 0x44, 0x44, 0xff}
	whitespace = regexp.MustCompile(`\s+`)
)

type line struct {
	label, value string
	color        color.Color
	centered     bool
	rule         bool
}

// Lines returns the receipt content top to bottom. Rendering is split out
// so the content can be checked without decoding pixels.
func Lines(r core.FarmerRecord) []string {
	var out []string
	for _, l := range layout(r) {
		switch {
		case l.rule:
			out = append(out, "---")
		case l.value == "":
			out = append(out, l.label)
		default:
			out = append(out, l.label+": "+l.value)
		}
	}
	return out
}

func layout(r core.FarmerRecord) []line {
	rec := core.Reconcile(r)
	billNo := r.BillNo.String()
	if billNo == "" {
		billNo = "N/A"
	}
	crop := r.Crop
	if strings.TrimSpace(crop) == "" {
		crop = "-"
	}
	balance := rupees(rec.Balance)
	balanceColor := color.Color(red)
	if r.IsSettled {
		balance += " (Settled)"
		balanceColor = green
	}

	return []line{
		{label: "Harvester Manager", color: green, centered: true},
		{label: "Official Receipt", color: muted, centered: true},
		{rule: true},
		{label: "Bill No", value: "#" + billNo, color: muted},
		{label: "Date", value: r.Date.Display(), color: ink},
		{label: "Farmer", value: r.Name, color: ink},
		{label: "Place", value: r.Place, color: ink},
		{label: "Crop", value: crop, color: ink},
		{label: "Contact", value: r.Contact, color: ink},
		{rule: true},
		{label: "Acres", value: r.Acres.String(), color: ink},
		{label: "Rate", value: rupees(r.Rate), color: ink},
		{label: "Total", value: rupees(r.Total), color: green},
		{label: "Paid", value: rupees(rec.PaidAmount), color: ink},
		{label: "Balance", value: balance, color: balanceColor},
		{rule: true},
		{label: "Thank you for your business!", color: muted, centered: true},
	}
}

// rupees spells the currency out because the bitmap font is ASCII only.
func rupees(d core.Decimal) string {
	return strings.Replace(core.FormatRupees(d), "₹", "Rs. ", 1)
}

// Render draws the receipt for r.
func Render(r core.FarmerRecord) *image.RGBA {
	lines := layout(r)
	height := 2*margin + len(lines)*lineHeight
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	y := margin
	for _, l := range lines {
		baseline := y + lineHeight - 7
		switch {
		case l.rule:
			mid := y + lineHeight/2
			draw.Draw(img, image.Rect(margin, mid, width-margin, mid+1), image.NewUniform(faint), image.Point{}, draw.Src)
		case l.centered:
			drawText(img, face, l.label, l.color, (width-textWidth(face, l.label))/2, baseline)
		default:
			drawText(img, face, l.label, muted, margin, baseline)
			drawText(img, face, ascii(l.value), l.color, width-margin-textWidth(face, ascii(l.value)), baseline)
		}
		y += lineHeight
	}
	return img
}

// Encode renders r as PNG into w.
func Encode(w io.Writer, r core.FarmerRecord) error {
	if err := png.Encode(w, Render(r)); err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	return nil
}

// FileName is the download name for r's receipt.
func FileName(r core.FarmerRecord) string {
	return fmt.Sprintf("Receipt_%s.png", whitespace.ReplaceAllString(r.Name, "_"))
}

func drawText(img draw.Image, face font.Face, s string, c color.Color, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Round()
}

// ascii replaces runes the bitmap font cannot draw.
func ascii(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}
