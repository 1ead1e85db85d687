package export

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

var pipelineTracer = otel.Tracer("github.com/farmgate-io/farmgate/export")

const (
	cacheKeyPrefix = "export:"
	csvExtension   = ".csv"

	// maxFilenameLen bounds the final on-disk name, extension included.
	maxFilenameLen = 255
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
var repeatedDots = regexp.MustCompile(`\.{2,}`)

// SanitizeFilename rewrites a requested export filename so the resulting file
// can never escape the export directory: repeated dots collapse to one, any
// character outside [A-Za-z0-9_.-] becomes an underscore, a leading dot is
// stripped, and the result is capped at 255 characters.
func SanitizeFilename(name string) string {
	s := repeatedDots.ReplaceAllString(name, ".")
	s = unsafeFilenameChars.ReplaceAllString(s, "_")
	s = strings.TrimPrefix(s, ".")
	if len(s) > maxFilenameLen {
		s = s[:maxFilenameLen]
	}
	return s
}

// Pipeline streams row batches into CSV files under a configured directory,
// memoizing finished file paths in the cache layer.
type Pipeline struct {
	store  cache.Store
	logger *zap.Logger
	cfg    config.Export
	group  singleflight.Group
}

// NewPipeline builds an export pipeline from configuration.
func NewPipeline(cfg config.Export, store cache.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		logger: logger,
		cfg:    cfg,
	}
}

// StreamToCSV drains source into a CSV file named after filename and returns
// the resulting path. Rows are written as they arrive; the whole operation is
// bounded by the configured timeout. Completed paths are cached per sanitized
// filename, so a repeated request returns the existing file without a rewrite.
// Concurrent requests for the same sanitized filename share one build.
func (p *Pipeline) StreamToCSV(ctx context.Context, source Source, filename string) (string, error) {
	if source == nil {
		return "", errorbank.BadRequest("row source is required")
	}
	if strings.TrimSpace(filename) == "" {
		return "", errorbank.BadRequest("filename is required")
	}

	sanitized := SanitizeFilename(filename)
	if sanitized == "" {
		return "", errorbank.BadRequest("filename has no usable characters")
	}
	if !strings.HasSuffix(sanitized, csvExtension) {
		// Appending the extension must not push the name past the cap.
		if len(sanitized) > maxFilenameLen-len(csvExtension) {
			sanitized = strings.TrimRight(sanitized[:maxFilenameLen-len(csvExtension)], ".")
		}
		sanitized += csvExtension
	}
	if sanitized != filename && p.logger != nil {
		p.logger.Info("export filename sanitized",
			zap.String("requested", filename),
			zap.String("sanitized", sanitized),
		)
	}

	ctx, span := pipelineTracer.Start(ctx, "ExportPipeline.StreamToCSV",
		trace.WithAttributes(attribute.String("export.filename", sanitized)))
	defer span.End()

	if path, ok := p.cachedPath(ctx, sanitized); ok {
		span.SetAttributes(attribute.Bool("export.cache_hit", true))
		return path, nil
	}

	result, err, _ := p.group.Do(sanitized, func() (any, error) {
		return p.build(ctx, source, sanitized)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "export failed")
		return "", err
	}
	return result.(string), nil
}

// cachedPath resolves a previously exported file for the sanitized filename.
// Cache failures count as a miss; a stale entry pointing at a removed file is
// ignored as well.
func (p *Pipeline) cachedPath(ctx context.Context, sanitized string) (string, bool) {
	if p.store == nil {
		return "", false
	}
	raw, err := p.store.Get(ctx, cacheKeyPrefix+sanitized)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && p.logger != nil {
			p.logger.Warn("export cache read failed", zap.String("filename", sanitized), zap.Error(err))
		}
		return "", false
	}
	path := string(raw)
	if _, statErr := os.Stat(path); statErr != nil {
		return "", false
	}
	return path, true
}

func (p *Pipeline) build(ctx context.Context, source Source, sanitized string) (string, error) {
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return "", errorbank.IO("failed to create export directory", errorbank.WithCause(err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	finalPath := filepath.Join(p.cfg.Dir, sanitized)

	// Temp names stay short regardless of the export name so a name right at
	// the filesystem cap still builds.
	tmp, err := os.CreateTemp(p.cfg.Dir, "export-*.part")
	if err != nil {
		return "", errorbank.IO("failed to create export file", errorbank.WithCause(err))
	}
	tmpPath := tmp.Name()

	if err := p.writeCSV(ctx, tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errorbank.IO("failed to flush export file", errorbank.WithCause(err))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", errorbank.IO("failed to finalize export file", errorbank.WithCause(err))
	}

	if p.store != nil {
		if err := p.store.Set(ctx, cacheKeyPrefix+sanitized, []byte(finalPath), p.cfg.CacheTTL); err != nil {
			if p.logger != nil {
				p.logger.Warn("export cache write failed", zap.String("filename", sanitized), zap.Error(err))
			}
		}
	}

	if p.logger != nil {
		p.logger.Info("export completed", zap.String("path", finalPath))
	}
	return finalPath, nil
}

// writeCSV drains the source batch by batch. The header row goes out once;
// each batch is flushed before the next is pulled so memory stays bounded.
func (p *Pipeline) writeCSV(ctx context.Context, dst io.Writer, source Source) error {
	w := csv.NewWriter(dst)

	if header := source.Header(); len(header) > 0 {
		if err := w.Write(header); err != nil {
			return errorbank.IO("failed to write csv header", errorbank.WithCause(err))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return timeoutOr(err)
		}

		batch, err := source.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return timeoutOr(err)
		}

		for _, row := range batch {
			if err := w.Write(row); err != nil {
				return errorbank.IO("failed to write csv row", errorbank.WithCause(err))
			}
		}

		w.Flush()
		if err := w.Error(); err != nil {
			return errorbank.IO("failed to flush csv rows", errorbank.WithCause(err))
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errorbank.IO("failed to flush csv rows", errorbank.WithCause(err))
	}
	return nil
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errorbank.Timeout("export exceeded time limit", errorbank.WithCause(err))
	}
	return err
}
