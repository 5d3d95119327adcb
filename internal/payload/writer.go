package payload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
)

// ErrAbandoned is wrapped when a chunk exhausted its retries and the remaining queue was dropped
var ErrAbandoned = errors.New("payload abandoned")

// WriterOptions configures a Writer
type WriterOptions struct {
	ChunkSize int
	Policy    backoff.Policy

	// Pace is waited between successful chunk writes; zero writes back to back.
	Pace time.Duration
}

// Writer uploads code through a characteristic in sequential chunks
type Writer struct {
	exec   *backoff.Executor
	opts   WriterOptions
	sleep  backoff.SleepFunc
	logger *logrus.Logger
}

// NewWriter creates a Writer. Pacing uses sleep, falling back to backoff.Sleep when nil.
func NewWriter(exec *backoff.Executor, opts WriterOptions, sleep backoff.SleepFunc, logger *logrus.Logger) *Writer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if sleep == nil {
		sleep = backoff.Sleep
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Writer{exec: exec, opts: opts, sleep: sleep, logger: logger}
}

// Write splits code and writes every chunk through its own retry sequence.
// Chunk i+1 is only written once chunk i succeeded. When a chunk exhausts its
// retries the rest of the queue is dropped and an error wrapping ErrAbandoned
// is returned.
func (w *Writer) Write(ctx context.Context, char device.CharacteristicWriter, code string) error {
	if char == nil {
		return device.ErrNotReady
	}

	queue := Chunk(code, w.opts.ChunkSize)
	w.logger.WithFields(logrus.Fields{
		"bytes":  len(code),
		"chunks": len(queue),
	}).Info("Uploading code...")

	for i, chunk := range queue {
		log := w.logger.WithFields(logrus.Fields{
			"chunk": i + 1,
			"of":    len(queue),
			"bytes": len(chunk),
		})

		_, err := backoff.Retry(ctx, w.exec, "write-chunk", w.opts.Policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, char.Write(ctx, chunk)
		})
		if err != nil {
			log.WithField("error", err).Error("Chunk write failed, abandoning upload")
			return fmt.Errorf("%w: chunk %d of %d: %w", ErrAbandoned, i+1, len(queue), err)
		}
		log.Debug("Wrote chunk")

		if w.opts.Pace > 0 && i < len(queue)-1 {
			if err := w.sleep(ctx, w.opts.Pace); err != nil {
				return fmt.Errorf("%w: chunk %d of %d: %w", ErrAbandoned, i+2, len(queue), err)
			}
		}
	}

	w.logger.WithField("chunks", len(queue)).Info("Code uploaded")
	return nil
}
