package vout

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
)

// converter turns a decoded picture's planes into an image.Image in the
// display's colour model, at the picture's own resolution (no scaling —
// scaling into the on-screen rectangle is a separate draw.Scaler pass).
type converter func(planes [][]byte, width, height, chromaWidth int) image.Image

// converterTable has one entry per input pixel format (spec §4.6 step
// 5.4). YUV formats build a stdlib image.YCbCr directly (its SubsampleRatio
// already models 4:2:0/4:2:2/4:4:4 without hand-rolled BT.601 math); RGB
// packed formats wrap the plane as image.NRGBA.
var converterTable = map[codecapi.PixelFormat]converter{
	codecapi.PixelFormatYUV420: yuvConverter(image.YCbCrSubsampleRatio420),
	codecapi.PixelFormatYUV422: yuvConverter(image.YCbCrSubsampleRatio422),
	codecapi.PixelFormatYUV444: yuvConverter(image.YCbCrSubsampleRatio444),
	codecapi.PixelFormatRGBPacked: func(planes [][]byte, width, height, chromaWidth int) image.Image {
		if len(planes) == 0 {
			return image.NewNRGBA(image.Rect(0, 0, width, height))
		}
		return &image.NRGBA{
			Pix:    planes[0],
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		}
	},
}

func yuvConverter(ratio image.YCbCrSubsampleRatio) converter {
	return func(planes [][]byte, width, height, chromaWidth int) image.Image {
		if len(planes) < 3 {
			return image.NewGray(image.Rect(0, 0, width, height))
		}
		cw := chromaWidth
		if cw <= 0 {
			cw = width
		}
		return &image.YCbCr{
			Y:              planes[0],
			Cb:             planes[1],
			Cr:             planes[2],
			YStride:        width,
			CStride:        cw,
			SubsampleRatio: ratio,
			Rect:           image.Rect(0, 0, width, height),
		}
	}
}

// Convert dispatches to the converter table for pix, falling back to an
// opaque black frame for an unrecognised format rather than panicking —
// a malformed decoder output should degrade the picture, not the worker.
func Convert(pix codecapi.PixelFormat, planes [][]byte, width, height, chromaWidth int) image.Image {
	conv, ok := converterTable[pix]
	if !ok {
		img := image.NewGray(image.Rect(0, 0, width, height))
		return img
	}
	return conv(planes, width, height, chromaWidth)
}

// ScaleInto draws src, scaled to fit dstRect, onto dst using
// golang.org/x/image/draw's bilinear scaler (spec §4.6 step 5.4's "write
// into the picture region of the back buffer").
func ScaleInto(dst draw.Image, dstRect image.Rectangle, src image.Image) {
	draw.BiLinear.Scale(dst, dstRect, src, src.Bounds(), draw.Src, nil)
}

// averageGray is used by the overlay step to pick a legible text colour
// against whatever is already drawn (spec leaves overlay styling
// unspecified; keeping it simple and real rather than inventing a theme
// system).
func averageGray(img image.Image) color.Gray {
	b := img.Bounds()
	if b.Empty() {
		return color.Gray{Y: 255}
	}
	r, g, bch, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	y := (r + g + bch) / 3 >> 8
	if y > 128 {
		return color.Gray{Y: 0}
	}
	return color.Gray{Y: 255}
}
