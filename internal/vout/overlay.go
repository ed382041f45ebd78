package vout

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/alxayo/decoder-pipeline/internal/buffer"
)

var (
	overlayFontOnce sync.Once
	overlayFont     *truetype.Font
	overlayFontErr  error
)

func loadOverlayFont() (*truetype.Font, error) {
	overlayFontOnce.Do(func() {
		overlayFont, overlayFontErr = freetype.ParseFont(goregular.TTF)
	})
	return overlayFont, overlayFontErr
}

// Statistics is the subset of a decoder/vout run's counters the overlay
// prints, decoupled from package stats so vout does not need to import it
// just to read four numbers.
type Statistics struct {
	Decoded, Played, Lost, Displayed uint64
	FPS                              float64
}

// drawStatisticsOverlay renders the statistics line into a scratch
// gg.Context as wide as the back buffer and one bar high, composites it
// over the bottom of dst, and reports
// the dirtied rows to tracker (spec §4.6 step 5.5).
func drawStatisticsOverlay(dst draw.Image, width, height int, stats Statistics, tracker *buffer.Tracker) error {
	font, err := loadOverlayFont()
	if err != nil {
		return err
	}
	const barHeight = 18
	y := height - barHeight
	if y < 0 {
		y = 0
	}

	ctx := gg.NewContext(width, barHeight)
	ctx.SetRGBA(0, 0, 0, 0.55)
	ctx.Clear()

	face := truetype.NewFace(font, &truetype.Options{Size: 12})
	ctx.SetFontFace(face)
	textColor := contrastingTextColor(dst, image.Rect(0, y, width, y+barHeight))
	g := float64(textColor.Y) / 255
	ctx.SetRGB(g, g, g)
	line := fmt.Sprintf("decoded=%d played=%d lost=%d displayed=%d fps=%.1f",
		stats.Decoded, stats.Played, stats.Lost, stats.Displayed, stats.FPS)
	ctx.DrawStringAnchored(line, 4, float64(barHeight)/2, 0, 0.5)

	draw.Draw(dst, image.Rect(0, y, width, y+barHeight), ctx.Image(), image.Point{}, draw.Over)
	if tracker != nil {
		tracker.Mark(0, y, width, barHeight)
	}
	return nil
}

// contrastingTextColor samples whatever is already drawn under region and
// picks a legible text colour against it, via averageGray.
func contrastingTextColor(dst image.Image, region image.Rectangle) color.Gray {
	var sample image.Image = dst
	if si, ok := dst.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		sample = si.SubImage(region)
	}
	return averageGray(sample)
}

// drawInterfaceBand renders a thin accent band at the top of the frame,
// standing in for an on-screen-display interface surface (spec names the
// concept but leaves its exact content unspecified).
func drawInterfaceBand(dst draw.Image, width int, active bool, tracker *buffer.Tracker) {
	const bandHeight = 4
	if !active || width <= 0 {
		return
	}
	ctx := gg.NewContext(width, bandHeight)
	ctx.SetRGB(0.2, 0.6, 1.0)
	ctx.Clear()
	draw.Draw(dst, image.Rect(0, 0, width, bandHeight), ctx.Image(), image.Point{}, draw.Over)
	if tracker != nil {
		tracker.Mark(0, 0, width, bandHeight)
	}
}

// drawSubpicture blits one subpicture region's already-rasterized pixels
// onto dst at its declared position and reports the dirtied rows.
func drawSubpicture(dst draw.Image, x, y, w, h int, pixels []byte, tracker *buffer.Tracker) {
	if w <= 0 || h <= 0 || len(pixels) < w*h*4 {
		return
	}
	src := &image.NRGBA{Pix: pixels, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	draw.Draw(dst, image.Rect(x, y, x+w, y+h), src, image.Point{}, draw.Over)
	if tracker != nil {
		tracker.Mark(x, y, w, h)
	}
}
