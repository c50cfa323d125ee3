package pipeline

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/pixelsort"
)

// writeGrayPNG writes a gray image with the given rows and returns its path
func writeGrayPNG(t *testing.T, dir, name string, rows [][]uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, v := range row {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
	return path
}

func newSorter(t *testing.T, opts pixelsort.Options) *pixelsort.Sorter {
	t.Helper()
	s := pixelsort.New(opts)
	require.NoError(t, s.Initialize())
	t.Cleanup(s.Close)
	return s
}

func grayPixels(t *testing.T, path string) []uint8 {
	t.Helper()
	img, err := LoadImage(path)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "expected gray PNG, got %T", img)
	return gray.Pix
}

func TestRunSortsEveryInput(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	interDir := filepath.Join(t.TempDir(), "inter")

	a := writeGrayPNG(t, inDir, "a.png", [][]uint8{{200, 100, 50, 0}})
	b := writeGrayPNG(t, inDir, "b.png", [][]uint8{{3, 2}, {1, 0}})

	params := &Params{
		Output:                  outDir,
		Sort:                    pixelsort.Params{ThresholdMax: 1, Ascending: true},
		MaxSize:                 pixelsort.DefaultMaxSize,
		Concurrency:             2,
		SaveIntermediaryResults: true,
		IntermediaryDir:         interDir,
		JPEGQuality:             90,
	}
	results, err := New(params, newSorter(t, pixelsort.Options{}), nil).Run([]string{a, b})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, filepath.Join(outDir, "a_sorted.png"), results[0].Output)
	assert.Equal(t, []uint8{0, 50, 100, 200}, grayPixels(t, results[0].Output))
	assert.Equal(t, []uint8{2, 3, 0, 1}, grayPixels(t, results[1].Output))
	assert.Equal(t, 1, results[0].Report.Classification.Runs)
	assert.False(t, results[0].Skipped)

	for _, stage := range []string{"01_source.png", "02_run_map.png", "03_sorted.png"} {
		assert.FileExists(t, filepath.Join(interDir, "a", stage))
	}
}

func TestRunSingleOutputFile(t *testing.T) {
	dir := t.TempDir()
	in := writeGrayPNG(t, dir, "in.png", [][]uint8{{9, 8, 7}})
	out := filepath.Join(dir, "result.png")

	params := &Params{Output: out, Sort: pixelsort.Params{ThresholdMax: 1, Ascending: true}}
	results, err := New(params, newSorter(t, pixelsort.Options{}), nil).Run([]string{in})
	require.NoError(t, err)
	assert.Equal(t, out, results[0].Output)
	assert.Equal(t, []uint8{7, 8, 9}, grayPixels(t, out))
}

func TestRunOversizedInput(t *testing.T) {
	dir := t.TempDir()
	in := writeGrayPNG(t, dir, "wide.png", [][]uint8{{5, 4, 3, 2, 1}})

	t.Run("left unsorted", func(t *testing.T) {
		params := &Params{Output: filepath.Join(dir, "plain"), Sort: pixelsort.Params{ThresholdMax: 1, Ascending: true}, MaxSize: 4}
		results, err := New(params, newSorter(t, pixelsort.Options{MaxSize: 4}), nil).Run([]string{in})
		require.NoError(t, err)
		assert.True(t, results[0].Skipped)
		assert.Equal(t, []uint8{5, 4, 3, 2, 1}, grayPixels(t, results[0].Output))
	})

	t.Run("fitted", func(t *testing.T) {
		params := &Params{
			Output:       filepath.Join(dir, "fit"),
			Sort:         pixelsort.Params{ThresholdMax: 1, Ascending: true},
			MaxSize:      4,
			FitToMaxSize: true,
		}
		results, err := New(params, newSorter(t, pixelsort.Options{MaxSize: 4}), nil).Run([]string{in})
		require.NoError(t, err)
		assert.True(t, results[0].Resized)
		assert.False(t, results[0].Skipped)
		assert.Equal(t, 3, results[0].Report.Width)
	})
}

func TestRunErrors(t *testing.T) {
	p := New(&Params{Output: t.TempDir()}, newSorter(t, pixelsort.Options{}), nil)

	_, err := p.Run(nil)
	assert.Error(t, err)

	_, err = p.Run([]string{filepath.Join(t.TempDir(), "missing.png")})
	assert.Error(t, err)

	notImage := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(notImage, []byte("not a png"), 0644))
	_, err = p.Run([]string{notImage})
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))

	same, resized := Fit(img, models.Horizontal, 41)
	assert.False(t, resized)
	assert.Same(t, img, same)

	out, resized := Fit(img, models.Horizontal, 40)
	require.True(t, resized)
	assert.Equal(t, 39, out.Bounds().Dx())
	assert.LessOrEqual(t, out.Bounds().Dy(), 20)

	out, resized = Fit(img, models.Vertical, 11)
	require.True(t, resized)
	assert.Equal(t, 10, out.Bounds().Dy())
	assert.Equal(t, 20, out.Bounds().Dx())

	_, resized = Fit(img, models.Vertical, 21)
	assert.False(t, resized)
}

func TestRunSameBaseNameInDifferentDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0755))
	first := writeGrayPNG(t, filepath.Join(root, "a"), "frame.png", [][]uint8{{10, 10, 10, 10}})
	second := writeGrayPNG(t, filepath.Join(root, "b"), "frame.png", [][]uint8{{200, 200, 200, 200}})

	outDir := filepath.Join(root, "out")
	interDir := filepath.Join(root, "inter")
	params := &Params{
		Output:                  outDir,
		Sort:                    pixelsort.Params{ThresholdMax: 1, Ascending: true},
		Concurrency:             2,
		SaveIntermediaryResults: true,
		IntermediaryDir:         interDir,
		ExtractLine:             -1,
	}
	results, err := New(params, newSorter(t, pixelsort.Options{}), nil).Run([]string{first, second})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "frame_sorted.png"), results[0].Output)
	assert.Equal(t, filepath.Join(outDir, "frame_2_sorted.png"), results[1].Output)
	assert.Equal(t, []uint8{10, 10, 10, 10}, grayPixels(t, results[0].Output))
	assert.Equal(t, []uint8{200, 200, 200, 200}, grayPixels(t, results[1].Output))

	assert.FileExists(t, filepath.Join(interDir, "frame", "03_sorted.png"))
	assert.FileExists(t, filepath.Join(interDir, "frame_2", "03_sorted.png"))
}

func TestUniqueStems(t *testing.T) {
	stems := uniqueStems([]string{"a/x.png", "b/x.jpg", "x_2.png", "c/y.png"})
	assert.Equal(t, []string{"x", "x_2", "x_2_2", "y"}, stems)
}

func TestGIFOutputIsWrittenAsPNG(t *testing.T) {
	dir := t.TempDir()
	in := writeGrayPNG(t, dir, "in.png", [][]uint8{{9, 8, 7}})

	params := &Params{Output: filepath.Join(dir, "result.gif"), Sort: pixelsort.Params{ThresholdMax: 1, Ascending: true}}
	results, err := New(params, newSorter(t, pixelsort.Options{}), nil).Run([]string{in})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "result.png"), results[0].Output)
	assert.Equal(t, []uint8{7, 8, 9}, grayPixels(t, results[0].Output))

	p := New(&Params{Output: "out"}, nil, nil)
	assert.Equal(t, filepath.Join("out", "anim_sorted.png"), p.outputPath("anim.gif", "anim", 2))
}

func TestRunExtractsLine(t *testing.T) {
	dir := t.TempDir()
	in := writeGrayPNG(t, dir, "grid.png", [][]uint8{{3, 2}, {1, 0}})
	interDir := filepath.Join(dir, "inter")

	params := &Params{
		Output:                  filepath.Join(dir, "out"),
		Sort:                    pixelsort.Params{ThresholdMax: 1, Ascending: true},
		SaveIntermediaryResults: true,
		IntermediaryDir:         interDir,
		ExtractLine:             1,
	}
	_, err := New(params, newSorter(t, pixelsort.Options{}), nil).Run([]string{in})
	require.NoError(t, err)

	profile, err := LoadImage(filepath.Join(interDir, "grid", "04_line_1.png"))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 2), profile.Bounds())

	gray := func(x, y int) uint8 {
		return color.GrayModel.Convert(profile.At(x, y)).(color.Gray).Y
	}
	assert.Equal(t, []uint8{1, 0}, []uint8{gray(0, 0), gray(1, 0)}, "line before sorting")
	assert.Equal(t, []uint8{0, 1}, []uint8{gray(0, 1), gray(1, 1)}, "line after sorting")
}
