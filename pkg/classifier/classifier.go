// Package classifier implements the meta pass of the pixel sorter: it keys every
// pixel, tests the key against the threshold window and records, per pixel,
// the bounds of the maximal in-window run containing it.
package classifier

import (
	"image"

	"gonum.org/v1/gonum/stat"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/dispatch"
	"bitonicpixelsort/pkg/sortkey"
)

// Summary describes the runs found in one classification
type Summary struct {
	Lines           int
	Runs            int
	SortablePixels  int
	LongestRun      int
	MeanRunLength   float64
	StdDevRunLength float64
}

// Classify keys every pixel of src and fills runs with the run bounds of
// every pixel. keys and runs are line-major buffers of geom.Len() elements.
// The source image is only read. Lines are classified in parallel.
func Classify(d *dispatch.Dispatcher, src image.Image, geom models.Geometry, window models.Window,
	key sortkey.Func, keys []float32, runs []models.RunBounds) {
	if geom.Empty() {
		return
	}

	origin := src.Bounds().Min
	d.ParallelFor(geom.Lines, func(start, end int) {
		for line := start; line < end; line++ {
			lineKeys := keys[geom.Offset(line, 0):geom.Offset(line, geom.Size)]
			for i := range lineKeys {
				x, y := geom.Point(line, i)
				lineKeys[i] = key(src.At(origin.X+x, origin.Y+y))
			}
			ClassifyLine(lineKeys, window, runs[geom.Offset(line, 0):geom.Offset(line, geom.Size)])
		}
	})
}

// ClassifyLine assigns every in-window position of a single line the bounds of
// its maximal contiguous in-window block and every other position NoRun.
func ClassifyLine(keys []float32, window models.Window, runs []models.RunBounds) {
	n := len(keys)

	// Forward: every in-window position learns where its block starts.
	for i := 0; i < n; i++ {
		switch {
		case !window.Contains(keys[i]):
			runs[i] = models.NoRun
		case i > 0 && runs[i-1].Start >= 0:
			runs[i].Start = runs[i-1].Start
		default:
			runs[i].Start = int32(i)
		}
	}

	// Backward: and where it ends.
	for i := n - 1; i >= 0; i-- {
		if runs[i].Start < 0 {
			continue
		}
		if i+1 < n && runs[i+1].Start == runs[i].Start {
			runs[i].End = runs[i+1].End
		} else {
			runs[i].End = int32(i + 1)
		}
	}
}

// Summarize counts the runs of a classified buffer and their length distribution
func Summarize(runs []models.RunBounds, geom models.Geometry) Summary {
	s := Summary{Lines: geom.Lines}
	if geom.Empty() {
		return s
	}

	var lengths []float64
	for line := 0; line < geom.Lines; line++ {
		for i := 0; i < geom.Size; i++ {
			r := runs[geom.Offset(line, i)]
			if !r.InRun() || int(r.Start) != i {
				continue
			}
			lengths = append(lengths, float64(r.Len()))
			s.SortablePixels += r.Len()
			s.LongestRun = max(s.LongestRun, r.Len())
		}
	}

	s.Runs = len(lengths)
	switch {
	case len(lengths) > 1:
		s.MeanRunLength, s.StdDevRunLength = stat.MeanStdDev(lengths, nil)
	case len(lengths) == 1:
		s.MeanRunLength = lengths[0]
	}
	return s
}
