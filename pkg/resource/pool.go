// Package resource manages the intermediate buffers the sorter needs per image:
// the run metadata written by the classifier and the working set the network
// reorders. Buffers are reused while the image dimensions stay the same and
// reallocated when they change.
package resource

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bitonicpixelsort/internal/models"
)

var (
	// ErrInvalidDimensions is returned by Ensure for negative dimensions
	ErrInvalidDimensions = errors.New("invalid buffer dimensions")

	// ErrUnknownFormat is returned by Ensure for a format the pool cannot allocate
	ErrUnknownFormat = errors.New("unknown buffer format")
)

// Format identifies the layout of a buffer
type Format int

const (
	// FormatRunMeta holds one RunBounds per pixel
	FormatRunMeta Format = iota

	// FormatWorkingSet holds one key and one source index per pixel
	FormatWorkingSet
)

func (f Format) String() string {
	switch f {
	case FormatRunMeta:
		return "run-meta"
	case FormatWorkingSet:
		return "working-set"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Buffer is a handle to a pixel-sized intermediate buffer.
// Only the slices matching its format are populated.
type Buffer struct {
	id     uint64
	width  int
	height int
	format Format

	// Runs is populated for FormatRunMeta
	Runs []models.RunBounds

	// Keys and Order are populated for FormatWorkingSet. Order holds, for every
	// line position, the line position of the source pixel currently there.
	Keys  []float32
	Order []int32
}

// ID identifies the allocation backing the handle
func (b *Buffer) ID() uint64 { return b.id }

// Width returns the width the buffer was sized for
func (b *Buffer) Width() int { return b.width }

// Height returns the height the buffer was sized for
func (b *Buffer) Height() int { return b.height }

// Format returns the buffer layout
func (b *Buffer) Format() Format { return b.format }

// Pool hands out intermediate buffers. Implementations are owned by the host.
type Pool interface {
	// Ensure returns a buffer of the requested size and format, reusing a
	// previous allocation when its dimensions match.
	Ensure(width, height int, format Format) (*Buffer, error)

	// Release gives the buffer back; the handle must not be used afterwards.
	Release(buf *Buffer)
}

// MemoryPool is a Pool backed by Go slices, keeping at most one buffer per format
type MemoryPool struct {
	mu          sync.Mutex
	buffers     map[Format]*Buffer
	nextID      uint64
	allocations int
	logger      *zap.Logger
}

// NewMemoryPool creates an empty pool
func NewMemoryPool(logger *zap.Logger) *MemoryPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryPool{
		buffers: make(map[Format]*Buffer),
		logger:  logger,
	}
}

// Ensure implements Pool
func (p *MemoryPool) Ensure(width, height int, format Format) (*Buffer, error) {
	if width < 0 || height < 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "%dx%d", width, height)
	}
	if format != FormatRunMeta && format != FormatWorkingSet {
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", format)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if buf, ok := p.buffers[format]; ok && buf.width == width && buf.height == height {
		return buf, nil
	}

	p.nextID++
	p.allocations++
	buf := &Buffer{id: p.nextID, width: width, height: height, format: format}
	n := width * height
	switch format {
	case FormatRunMeta:
		buf.Runs = make([]models.RunBounds, n)
	case FormatWorkingSet:
		buf.Keys = make([]float32, n)
		buf.Order = make([]int32, n)
	}
	p.buffers[format] = buf

	p.logger.Debug("buffer created",
		zap.Stringer("format", format),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Uint64("id", buf.id))

	return buf, nil
}

// Release implements Pool. Releasing a stale or foreign handle is a no-op.
func (p *MemoryPool) Release(buf *Buffer) {
	if buf == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.buffers[buf.format]; ok && cur.id == buf.id {
		delete(p.buffers, buf.format)
		p.logger.Debug("buffer released", zap.Stringer("format", buf.format), zap.Uint64("id", buf.id))
	}
}

// Allocations returns how many buffers the pool has allocated so far
func (p *MemoryPool) Allocations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocations
}
