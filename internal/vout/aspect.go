package vout

// AspectRatio names a declared sample aspect ratio (spec §4.6.1). The
// original implementation enumerates a fixed table rather than accepting
// arbitrary ratios; SPEC_FULL keeps exactly these four.
type AspectRatio struct {
	Num, Den int
}

var (
	Aspect4x3   = AspectRatio{Num: 4, Den: 3}
	Aspect16x9  = AspectRatio{Num: 16, Den: 9}
	Aspect221x1 = AspectRatio{Num: 221, Den: 100} // "2.21:1"
	AspectSquare = AspectRatio{Num: 1, Den: 1}
)

// Rect is an on-screen rectangle, in back-buffer pixel coordinates.
type Rect struct {
	X, Y, W, H int
}

func roundDownTo16(n int) int {
	return n - n%16
}

// ComputeRect implements spec §4.6.1: prefer horizontal fit, redo with
// vertical fit if the horizontal box would overflow the sink, then centre.
//
// AspectSquare names 1:1 sample pixels, not a square picture box: the
// original follows the source's own height/width ratio in that case
// (video_output.c's AR_SQUARE_PICTURE case), so the square branch scales by
// srcH/srcW instead of aspect.Num/aspect.Den.
func ComputeRect(sinkW, sinkH, srcW, srcH int, aspect AspectRatio) Rect {
	if aspect.Num <= 0 || aspect.Den <= 0 {
		aspect = AspectSquare
	}
	square := aspect == AspectSquare
	if square {
		if srcW <= 0 {
			srcW = 1
		}
		if srcH <= 0 {
			srcH = 1
		}
	}

	picWidth := min(sinkW, srcW)
	picWidth = roundDownTo16(picWidth)
	if picWidth <= 0 {
		picWidth = 16
	}
	var picHeight int
	if square {
		picHeight = picWidth * srcH / srcW
	} else {
		picHeight = picWidth * aspect.Den / aspect.Num
	}

	if picHeight > sinkH {
		picHeight = min(sinkH, srcH)
		picHeight = roundDownTo16(picHeight)
		if picHeight <= 0 {
			picHeight = 16
		}
		if square {
			picWidth = picHeight * srcW / srcH
		} else {
			picWidth = picHeight * aspect.Num / aspect.Den
		}
	}

	return Rect{
		X: (sinkW - picWidth) / 2,
		Y: (sinkH - picHeight) / 2,
		W: picWidth,
		H: picHeight,
	}
}
