package visualization

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"bitonicpixelsort/internal/models"
)

// runColors alternate between neighbouring runs so their boundaries stay visible
var runColors = []color.NRGBA{
	{R: 230, G: 80, B: 60, A: 255},
	{R: 60, G: 160, B: 230, A: 255},
	{R: 240, G: 200, B: 50, A: 255},
}

// RunMap renders classifier metadata as an image of the original dimensions.
// Pixels outside any run are black; each run is painted in a colour that
// differs from the run before it on the same line.
func RunMap(runs []models.RunBounds, geom models.Geometry) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, geom.Width, geom.Height))
	if geom.Empty() {
		return img
	}

	for line := 0; line < geom.Lines; line++ {
		runIdx := -1
		for i := 0; i < geom.Size; i++ {
			x, y := geom.Point(line, i)
			r := runs[geom.Offset(line, i)]
			if !r.InRun() {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
				continue
			}
			if int(r.Start) == i {
				runIdx++
			}
			img.SetNRGBA(x, y, runColors[runIdx%len(runColors)])
		}
	}

	return img
}

// ExtractLine returns the pixels of one line of img along the given direction
func ExtractLine(img image.Image, dir models.Direction, line int) ([]color.Color, error) {
	if line < 0 {
		return nil, errors.New("line must be non-negative")
	}

	b := img.Bounds()
	geom := models.NewGeometry(b.Dx(), b.Dy(), dir)

	switch dir {
	case models.Horizontal, models.Vertical:
		if line >= geom.Lines {
			return nil, errors.Errorf("line %d exceeds line count %d", line, geom.Lines)
		}
	default:
		return nil, errors.Errorf("invalid direction: %s", dir)
	}

	pixels := make([]color.Color, geom.Size)
	for i := range pixels {
		x, y := geom.Point(line, i)
		pixels[i] = img.At(b.Min.X+x, b.Min.Y+y)
	}
	return pixels, nil
}

// LineProfile renders one line of before and after as a two-row strip:
// row 0 holds the pixels of before, row 1 those of after, in line order
func LineProfile(before, after image.Image, dir models.Direction, line int) (*image.RGBA64, error) {
	src, err := ExtractLine(before, dir, line)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract source line")
	}
	dst, err := ExtractLine(after, dir, line)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract sorted line")
	}
	if len(src) != len(dst) {
		return nil, errors.Errorf("line lengths differ: %d and %d", len(src), len(dst))
	}

	img := image.NewRGBA64(image.Rect(0, 0, len(src), 2))
	for i := range src {
		img.Set(i, 0, src[i])
		img.Set(i, 1, dst[i])
	}
	return img, nil
}

// SaveImage writes img to filename, as JPEG for .jpg/.jpeg and PNG otherwise
func SaveImage(img image.Image, filename string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return err
	}

	return file.Close()
}
