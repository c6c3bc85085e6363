package filedevice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yegors/voicenote/internal/capture"
	"github.com/yegors/voicenote/pkg/logger"
)

// NewRecorder matches capture.RecorderFactory. It replays the stream's audio
// track, emitting one chunk per timeslice.
func (d *Devices) NewRecorder(s capture.MediaStream, mimeType string, timeslice time.Duration) (capture.MediaRecorder, error) {
	var source *track
	for _, t := range s.Tracks() {
		if ft, ok := t.(*track); ok && ft.kind == capture.TrackAudio && ft.file != nil {
			source = ft
			break
		}
	}
	if source == nil {
		return nil, fmt.Errorf("no replayable audio track: %w", capture.ErrNotSupported)
	}
	if timeslice <= 0 {
		timeslice = time.Second
	}

	return &recorder{
		source:    source,
		mimeType:  mimeType,
		timeslice: timeslice,
		chunk:     d.opts.ChunkBytes,
		devices:   d,
		logger:    d.logger.With(logger.String("track", source.id)),
	}, nil
}

type recorder struct {
	source    *track
	mimeType  string
	timeslice time.Duration
	chunk     int
	devices   *Devices
	logger    *logger.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func (r *recorder) Start(onData func(chunk []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	if r.source.State() == capture.TrackEnded {
		return fmt.Errorf("audio track ended: %w", capture.ErrPermissionDenied)
	}

	r.started = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	exhausted := r.devices.resetExhausted()

	go r.run(onData, exhausted)

	r.logger.Debug("Recorder started",
		logger.String("mime_type", r.mimeType),
		logger.Duration("timeslice", r.timeslice))
	return nil
}

func (r *recorder) run(onData func([]byte), exhausted chan struct{}) {
	defer close(r.done)

	ticker := time.NewTicker(r.timeslice)
	defer ticker.Stop()

	buf := make([]byte, r.chunk)
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(r.source.file, buf)
		if n > 0 {
			onData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && r.source.State() != capture.TrackEnded {
				r.logger.Warn("Audio source read failed", logger.Error(err))
			}
			close(exhausted)
			<-r.stop
			return
		}
	}
}

// Stop halts replay and waits until the emitting goroutine has exited
func (r *recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return errors.New("recorder not started")
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
