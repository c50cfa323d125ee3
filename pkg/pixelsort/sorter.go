// Package pixelsort is the host-facing entry point of the pixel sorting effect.
// A Sorter composes the run classifier and the segmented bitonic network:
// source image → run metadata → sorted image.
package pixelsort

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/bitonic"
	"bitonicpixelsort/pkg/classifier"
	"bitonicpixelsort/pkg/dispatch"
	"bitonicpixelsort/pkg/resource"
	"bitonicpixelsort/pkg/sortkey"
)

// DefaultMaxSize is the exclusive upper bound on the sortable dimension
const DefaultMaxSize = 2048

var (
	// ErrSizeExceeded is returned when the sortable dimension reaches the size cap.
	// The destination then holds an unmodified copy of the source.
	ErrSizeExceeded = errors.New("sortable dimension exceeds the supported network size")

	// ErrNotInitialized is returned by Sort and SortInto before Initialize succeeded
	ErrNotInitialized = errors.New("sorter is not initialized")

	// ErrSizeMismatch is returned by SortInto when source and destination differ in size
	ErrSizeMismatch = errors.New("source and destination sizes differ")
)

// Options configure a Sorter. Zero values select the defaults.
type Options struct {
	// Key derives the sort key of a pixel. Takes precedence over KeyName.
	Key sortkey.Func

	// KeyName selects a registered key when Key is nil
	KeyName string

	// Strategy selects how network rounds are scheduled ("single" or "rounds")
	Strategy string

	// MaxSize is the exclusive cap on the sortable dimension
	MaxSize int

	// Workers is the number of parallel workers, GOMAXPROCS when <= 0
	Workers int

	// Pool provides the intermediate buffers; a MemoryPool is created when nil
	Pool resource.Pool

	// Logger receives diagnostics; nil disables logging
	Logger *zap.Logger
}

// Params are the per-invocation parameters of the effect
type Params struct {
	Direction    models.Direction
	Ascending    bool
	ThresholdMin float32
	ThresholdMax float32

	// Bypass copies the source unchanged, as a disabled effect would
	Bypass bool

	// CaptureRuns copies the run metadata into the returned Report
	CaptureRuns bool
}

// Window returns the threshold window described by the params
func (p Params) Window() models.Window {
	return models.Window{Min: p.ThresholdMin, Max: p.ThresholdMax}
}

// Report describes the last completed invocation
type Report struct {
	Width, Height  int
	Direction      models.Direction
	Size, Lines    int
	Strategy       bitonic.Strategy
	Classification classifier.Summary
	Network        bitonic.Stats
	Elapsed        time.Duration

	// Runs is the line-major run metadata, set only when Params.CaptureRuns is true
	Runs []models.RunBounds
}

// Sorter applies the pixel sorting effect. Invocations are serialised because
// the intermediate buffers are shared between them.
type Sorter struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	key         sortkey.Func
	pool        resource.Pool
	ownPool     bool
	meta, work  *resource.Buffer
	dispatcher  *dispatch.Dispatcher
	network     *bitonic.Network
	logger      *zap.Logger
	report      Report
}

// New creates a sorter. Initialize must be called before the first Sort.
func New(opts Options) *Sorter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return &Sorter{opts: opts, logger: logger}
}

// Initialize resolves the key and strategy and starts the workers.
// It is idempotent: calls after the first success do nothing.
func (s *Sorter) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	key := s.opts.Key
	if key == nil {
		var err error
		if key, err = sortkey.Lookup(s.opts.KeyName); err != nil {
			return errors.Wrap(err, "failed to resolve sort key")
		}
	}

	strategy, err := bitonic.ParseStrategy(s.opts.Strategy)
	if err != nil {
		return errors.Wrap(err, "failed to resolve sort strategy")
	}

	d, err := dispatch.New(s.opts.Workers, s.logger)
	if err != nil {
		return err
	}

	s.pool = s.opts.Pool
	s.ownPool = s.pool == nil
	if s.ownPool {
		s.pool = resource.NewMemoryPool(s.logger)
	}
	s.key = key
	s.dispatcher = d
	s.network = bitonic.NewNetwork(d, strategy)
	s.initialized = true

	s.logger.Debug("sorter initialized",
		zap.Stringer("strategy", strategy),
		zap.Int("workers", d.Workers()),
		zap.Int("maxSize", s.opts.MaxSize))
	return nil
}

// Sort returns a sorted copy of src. The copy has the same bounds as src and,
// for the standard image types, the same pixel type.
//
// If the sortable dimension reaches the size cap the returned image is an
// unmodified copy of src and the error wraps ErrSizeExceeded.
func (s *Sorter) Sort(src image.Image, p Params) (image.Image, error) {
	out, _, err := s.SortWithReport(src, p)
	return out, err
}

// SortWithReport is Sort, also returning the report of this invocation
func (s *Sorter) SortWithReport(src image.Image, p Params) (image.Image, Report, error) {
	if src.Bounds().Empty() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.initialized {
			return nil, Report{}, ErrNotInitialized
		}
		return src, Report{Direction: p.Direction}, nil
	}

	dst := newSurface(src)
	report, err := s.sortInto(dst, src, p)
	if err != nil {
		if errors.Is(err, ErrSizeExceeded) {
			return dst, report, err
		}
		return nil, report, err
	}
	return dst, report, nil
}

// SortInto writes the sorted pixels of src into dst. dst must have the same
// dimensions as src and must not share pixel memory with it.
func (s *Sorter) SortInto(dst draw.Image, src image.Image, p Params) error {
	_, err := s.sortInto(dst, src, p)
	return err
}

func (s *Sorter) sortInto(dst draw.Image, src image.Image, p Params) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return Report{}, ErrNotInitialized
	}

	sb, db := src.Bounds(), dst.Bounds()
	if sb.Dx() != db.Dx() || sb.Dy() != db.Dy() {
		return Report{}, errors.Wrapf(ErrSizeMismatch, "source %dx%d, destination %dx%d", sb.Dx(), sb.Dy(), db.Dx(), db.Dy())
	}

	geom := models.NewGeometry(sb.Dx(), sb.Dy(), p.Direction)
	report := Report{
		Width:     geom.Width,
		Height:    geom.Height,
		Direction: p.Direction,
		Size:      geom.Size,
		Lines:     geom.Lines,
		Strategy:  s.network.Strategy(),
	}
	if geom.Empty() {
		return report, nil
	}

	if p.Bypass {
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return report, nil
	}

	if geom.Size >= s.opts.MaxSize {
		s.logger.Error("size of source image must be smaller than the cap",
			zap.Int("size", geom.Size),
			zap.Int("maxSize", s.opts.MaxSize),
			zap.Stringer("direction", p.Direction))
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return report, errors.Wrapf(ErrSizeExceeded, "size %d, cap %d", geom.Size, s.opts.MaxSize)
	}

	started := time.Now()

	meta, err := s.pool.Ensure(geom.Width, geom.Height, resource.FormatRunMeta)
	if err != nil {
		return report, errors.Wrap(err, "failed to acquire run metadata buffer")
	}
	work, err := s.pool.Ensure(geom.Width, geom.Height, resource.FormatWorkingSet)
	if err != nil {
		return report, errors.Wrap(err, "failed to acquire working buffer")
	}
	s.meta, s.work = meta, work

	classifier.Classify(s.dispatcher, src, geom, p.Window(), s.key, work.Keys, meta.Runs)
	report.Network = s.network.Sort(geom, work.Keys, work.Order, meta.Runs, p.Ascending)
	s.writeBack(dst, src, geom, work.Order)

	report.Classification = classifier.Summarize(meta.Runs, geom)
	report.Elapsed = time.Since(started)
	if p.CaptureRuns {
		report.Runs = append([]models.RunBounds(nil), meta.Runs...)
	}
	s.report = report

	s.logger.Debug("image sorted",
		zap.Int("width", geom.Width),
		zap.Int("height", geom.Height),
		zap.Int("runs", report.Classification.Runs),
		zap.Int("stages", report.Network.Stages),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// writeBack copies, for every line position, the source pixel the network
// moved there. Positions outside runs map onto themselves.
func (s *Sorter) writeBack(dst draw.Image, src image.Image, geom models.Geometry, order []int32) {
	so, do := src.Bounds().Min, dst.Bounds().Min
	s.dispatcher.ParallelFor(geom.Lines, func(start, end int) {
		for line := start; line < end; line++ {
			for i := 0; i < geom.Size; i++ {
				x, y := geom.Point(line, i)
				sx, sy := geom.Point(line, int(order[geom.Offset(line, i)]))
				dst.Set(do.X+x, do.Y+y, src.At(so.X+sx, so.Y+sy))
			}
		}
	})
}

// LastReport returns the report of the last successful sort
func (s *Sorter) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Close stops the workers and, when the sorter created its own pool, releases
// the buffers it holds. The sorter must be initialized again before reuse.
func (s *Sorter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return
	}
	if s.ownPool {
		s.pool.Release(s.meta)
		s.pool.Release(s.work)
	}
	s.meta, s.work = nil, nil
	s.dispatcher.Close()
	s.initialized = false
}

// newSurface allocates a destination matching the pixel type of src, so that
// copying a pixel through At/Set is lossless.
func newSurface(src image.Image) draw.Image {
	b := src.Bounds()
	switch img := src.(type) {
	case *image.RGBA:
		return image.NewRGBA(b)
	case *image.NRGBA:
		return image.NewNRGBA(b)
	case *image.RGBA64:
		return image.NewRGBA64(b)
	case *image.NRGBA64:
		return image.NewNRGBA64(b)
	case *image.Gray:
		return image.NewGray(b)
	case *image.Gray16:
		return image.NewGray16(b)
	case *image.Paletted:
		return image.NewPaletted(b, img.Palette)
	default:
		return image.NewRGBA64(b)
	}
}
