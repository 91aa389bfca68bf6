// Package debugdump writes intermediate chain values to disk as PNG files.
package debugdump

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/gesture/internal/domain/pipeline"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

// Dumper is a pipeline.Observer. Failed writes are logged and dropped.
type Dumper struct {
	dir string
	log logger.Logger
}

// Option configures a Dumper.
type Option func(*Dumper)

// WithLogger sets the dumper logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dumper) { d.log = l }
}

// New creates dir if needed and returns a Dumper writing into it.
func New(dir string, opts ...Option) (*Dumper, error) {
	d := &Dumper{dir: dir}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Get().Named("debugdump")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	return d, nil
}

// Path returns the file an event is written to.
func (d *Dumper) Path(ev pipeline.StageEvent) string {
	id := ev.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	return filepath.Join(d.dir, id+"_"+strconv.Itoa(ev.Index)+"_"+ev.Transform+".png")
}

// OnStage renders ev.Output. Values that are not images are skipped.
func (d *Dumper) OnStage(ctx context.Context, ev pipeline.StageEvent) {
	img, err := ev.Output.ToImage()
	if err != nil {
		d.log.Debug(ctx, "stage output not renderable",
			logger.String("transform", ev.Transform),
			logger.String("shape", ev.Output.String()),
		)
		return
	}
	path := d.Path(ev)
	if err := writePNG(path, img); err != nil {
		metrics.RecordDebugDumpFailure()
		d.log.Debug(ctx, "debug dump failed", logger.String("path", path), logger.Error(err))
	}
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
