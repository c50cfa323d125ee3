// Package pipeline runs the pixel sorter over image files: it loads every
// input, optionally fits it under the size cap, sorts it and writes the
// result together with optional intermediary stages.
package pipeline

import (
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/pixelsort"
	"bitonicpixelsort/pkg/visualization"
)

// Params holds the file-level processing parameters
type Params struct {
	// Output is a file path when exactly one input is processed and it has an
	// image extension; otherwise it is the directory receiving the results.
	Output string

	// Sort holds the effect parameters applied to every input
	Sort pixelsort.Params

	// MaxSize is the exclusive cap on the sortable dimension, used by FitToMaxSize
	MaxSize int

	// FitToMaxSize downscales inputs whose sortable dimension reaches MaxSize
	FitToMaxSize bool

	// Concurrency bounds how many files are loaded and encoded at once
	Concurrency int

	// SaveIntermediaryResults determines whether to save the source, the run map
	// and the sorted image of every input under IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// ExtractLine selects the line whose pixels before and after sorting are
	// saved as an extra intermediary stage. Negative disables it.
	ExtractLine int

	// JPEGQuality is used for .jpg/.jpeg outputs
	JPEGQuality int
}

// Result describes the processing of one input file
type Result struct {
	Input  string
	Output string

	// Resized is set when the input was downscaled to fit the size cap
	Resized bool

	// Skipped is set when the input exceeded the size cap and was copied unchanged
	Skipped bool

	Report pixelsort.Report
}

// Pipeline processes image files with a shared sorter
type Pipeline struct {
	params *Params
	sorter *pixelsort.Sorter
	logger *zap.Logger
}

// New creates a pipeline. The sorter must already be initialized.
func New(params *Params, sorter *pixelsort.Sorter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{params: params, sorter: sorter, logger: logger}
}

// Run processes every input and returns one result per input, in input order
func (p *Pipeline) Run(inputs []string) ([]Result, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no input images given")
	}

	results := make([]Result, len(inputs))
	stems := uniqueStems(inputs)

	var g errgroup.Group
	if p.params.Concurrency > 0 {
		g.SetLimit(p.params.Concurrency)
	}
	for i, input := range inputs {
		g.Go(func() error {
			res, err := p.process(input, stems[i], p.outputPath(input, stems[i], len(inputs)))
			if err != nil {
				return errors.Wrapf(err, "failed to process %s", input)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// process runs the complete pipeline for a single file. stem names the
// intermediary directory of the input.
func (p *Pipeline) process(input, stem, output string) (Result, error) {
	res := Result{Input: input, Output: output}

	// Step 1: Load the source image
	img, err := LoadImage(input)
	if err != nil {
		return res, err
	}
	p.logger.Info("loaded image",
		zap.String("input", input),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	// Step 2: Fit under the size cap if requested
	if p.params.FitToMaxSize {
		var fitted image.Image
		fitted, res.Resized = Fit(img, p.params.Sort.Direction, p.params.MaxSize)
		if res.Resized {
			p.logger.Info("downscaled image to fit the size cap",
				zap.String("input", input),
				zap.Int("width", fitted.Bounds().Dx()),
				zap.Int("height", fitted.Bounds().Dy()))
			img = fitted
		}
	}

	// Step 3: Sort
	sortParams := p.params.Sort
	sortParams.CaptureRuns = p.params.SaveIntermediaryResults
	sorted, report, err := p.sorter.SortWithReport(img, sortParams)
	switch {
	case errors.Is(err, pixelsort.ErrSizeExceeded):
		p.logger.Warn("image left unsorted", zap.String("input", input), zap.Error(err))
		res.Skipped = true
	case err != nil:
		return res, err
	}
	res.Report = report

	// Step 4: Save the result
	if err := visualization.SaveImage(sorted, output, p.params.JPEGQuality); err != nil {
		return res, errors.Wrap(err, "failed to save result")
	}

	// Step 5: Save intermediary stages
	if p.params.SaveIntermediaryResults {
		if err := p.saveIntermediaryResults(stem, img, sorted, report); err != nil {
			p.logger.Warn("failed to save intermediary results", zap.String("input", input), zap.Error(err))
		}
	}

	p.logger.Info("sorted image",
		zap.String("output", output),
		zap.Int("runs", report.Classification.Runs),
		zap.Int("sortablePixels", report.Classification.SortablePixels),
		zap.Float64("meanRunLength", report.Classification.MeanRunLength),
		zap.Duration("elapsed", report.Elapsed))

	return res, nil
}

// saveIntermediaryResults writes the stages of one input under its own directory
func (p *Pipeline) saveIntermediaryResults(stem string, src, sorted image.Image, report pixelsort.Report) error {
	dir := filepath.Join(p.params.IntermediaryDir, stem)

	if err := visualization.SaveImage(src, filepath.Join(dir, "01_source.png"), p.params.JPEGQuality); err != nil {
		return err
	}

	if report.Runs != nil {
		geom := models.NewGeometry(report.Width, report.Height, report.Direction)
		runMap := visualization.RunMap(report.Runs, geom)
		if err := visualization.SaveImage(runMap, filepath.Join(dir, "02_run_map.png"), p.params.JPEGQuality); err != nil {
			return err
		}
	}

	if err := visualization.SaveImage(sorted, filepath.Join(dir, "03_sorted.png"), p.params.JPEGQuality); err != nil {
		return err
	}

	if line := p.params.ExtractLine; line >= 0 {
		profile, err := visualization.LineProfile(src, sorted, report.Direction, line)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("04_line_%d.png", line)
		if err := visualization.SaveImage(profile, filepath.Join(dir, name), p.params.JPEGQuality); err != nil {
			return err
		}
	}

	return nil
}

// outputPath decides where the result of input is written. GIF has no
// encoder here, so GIF destinations are written as PNG.
func (p *Pipeline) outputPath(input, stem string, total int) string {
	if total == 1 && isImagePath(p.params.Output) {
		return pngIfGIF(p.params.Output)
	}
	ext := strings.ToLower(filepath.Ext(input))
	if !isImagePath(input) {
		ext = ".png"
	}
	return pngIfGIF(filepath.Join(p.params.Output, fmt.Sprintf("%s_sorted%s", stem, ext)))
}

func pngIfGIF(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".gif") {
		return strings.TrimSuffix(path, ext) + ".png"
	}
	return path
}

// uniqueStems returns the base name of every input. Inputs sharing a base
// name after the first get a numeric suffix, so their outputs never collide.
func uniqueStems(inputs []string) []string {
	stems := make([]string, len(inputs))
	taken := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		base := baseName(input)
		stem := base
		for n := 2; taken[stem]; n++ {
			stem = fmt.Sprintf("%s_%d", base, n)
		}
		taken[stem] = true
		stems[i] = stem
	}
	return stems
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func isImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	default:
		return false
	}
}

// LoadImage decodes a PNG, JPEG or GIF file
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	return img, nil
}

// Fit downscales img, preserving its aspect ratio, so that the dimension
// sorted along dir is smaller than maxSize. Images that already fit are
// returned unchanged with false.
func Fit(img image.Image, dir models.Direction, maxSize int) (image.Image, bool) {
	b := img.Bounds()
	geom := models.NewGeometry(b.Dx(), b.Dy(), dir)
	if maxSize <= 1 || geom.Size < maxSize {
		return img, false
	}

	target := uint(maxSize - 1)
	if dir == models.Vertical {
		return resize.Resize(0, target, img, resize.Lanczos3), true
	}
	return resize.Resize(target, 0, img, resize.Lanczos3), true
}
