// Package filedevice provides capture devices that replay an encoded audio
// file as if it were a live source. It backs the record command and
// end-to-end tests.
package filedevice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yegors/voicenote/internal/capture"
	"github.com/yegors/voicenote/pkg/logger"
)

const defaultChunkBytes = 16 * 1024

// Options configures file replay
type Options struct {
	// ChunkBytes is the size of each emitted chunk
	ChunkBytes int
	// DisplaySupported enables GetDisplayMedia
	DisplaySupported bool
	// ShareSystemAudio adds an audio track to display streams. Without it a
	// display stream carries only video, like a tab shared without audio.
	ShareSystemAudio bool
}

var _ capture.MediaDevices = (*Devices)(nil)

// Devices replays a file for every capture request
type Devices struct {
	path   string
	opts   Options
	logger *logger.Logger

	mu        sync.Mutex
	exhausted chan struct{}
}

// New creates file-backed devices for path
func New(path string, opts Options, log *logger.Logger) *Devices {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = defaultChunkBytes
	}

	return &Devices{
		path:      path,
		opts:      opts,
		logger:    log.Named("filedevice"),
		exhausted: make(chan struct{}),
	}
}

// GetUserMedia opens the file as a microphone stream
func (d *Devices) GetUserMedia(ctx context.Context, _ capture.AudioConstraints) (capture.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track, err := d.openAudioTrack()
	if err != nil {
		return nil, err
	}
	return &stream{tracks: []capture.MediaTrack{track}}, nil
}

// GetDisplayMedia returns a video track plus, when ShareSystemAudio is set,
// an audio track replaying the file
func (d *Devices) GetDisplayMedia(ctx context.Context, _ capture.DisplayConstraints) (capture.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.opts.DisplaySupported {
		return nil, fmt.Errorf("display capture: %w", capture.ErrNotSupported)
	}

	s := &stream{tracks: []capture.MediaTrack{newTrack(capture.TrackVideo, nil)}}
	if d.opts.ShareSystemAudio {
		track, err := d.openAudioTrack()
		if err != nil {
			s.tracks[0].Stop()
			return nil, err
		}
		s.tracks = append(s.tracks, track)
	}
	return s, nil
}

// Exhausted is closed once the most recently started recorder has replayed
// the whole file
func (d *Devices) Exhausted() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exhausted
}

func (d *Devices) openAudioTrack() (*track, error) {
	f, err := os.Open(d.path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %v", capture.ErrNotSupported, err)
		default:
			return nil, fmt.Errorf("failed to open audio file: %w", err)
		}
	}

	d.logger.Debug("Opened audio source", logger.String("path", d.path))
	return newTrack(capture.TrackAudio, f), nil
}

// resetExhausted hands out a fresh exhaustion channel for a new recorder
func (d *Devices) resetExhausted() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exhausted = make(chan struct{})
	return d.exhausted
}

type stream struct {
	tracks []capture.MediaTrack
}

func (s *stream) Tracks() []capture.MediaTrack {
	return s.tracks
}

type track struct {
	id    string
	kind  capture.TrackKind
	file  *os.File
	ended atomic.Bool
	once  sync.Once
}

func newTrack(kind capture.TrackKind, file *os.File) *track {
	return &track{id: uuid.NewString(), kind: kind, file: file}
}

func (t *track) ID() string              { return t.id }
func (t *track) Kind() capture.TrackKind { return t.kind }

func (t *track) State() capture.TrackState {
	if t.ended.Load() {
		return capture.TrackEnded
	}
	return capture.TrackLive
}

func (t *track) Stop() {
	t.once.Do(func() {
		t.ended.Store(true)
		if t.file != nil {
			t.file.Close()
		}
	})
}
