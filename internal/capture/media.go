package capture

import (
	"context"
	"errors"
	"time"

	"github.com/yegors/voicenote/internal/config"
)

var (
	// ErrPermissionDenied is returned by device adapters when the OS or
	// browser permission system rejects a capture request
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotSupported is returned by device adapters when the requested
	// capture API is unavailable
	ErrNotSupported = errors.New("capture not supported")
)

// TrackKind is the media type carried by a track
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackState mirrors the readyState of a media track
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// MediaTrack is a single audio or video track owned by a stream
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	State() TrackState
	// Stop releases the underlying device. It must be safe to call twice.
	Stop()
}

// MediaStream is an acquired capture stream
type MediaStream interface {
	Tracks() []MediaTrack
}

// AudioConstraints are requested when acquiring audio
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

// VideoConstraints describe the throwaway video track that display capture
// requires
type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate int
}

// DisplayConstraints are requested when acquiring system or tab audio
type DisplayConstraints struct {
	Audio AudioConstraints
	Video VideoConstraints
}

// MediaDevices acquires capture streams
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints AudioConstraints) (MediaStream, error)
	GetDisplayMedia(ctx context.Context, constraints DisplayConstraints) (MediaStream, error)
}

// MediaRecorder encodes a stream into chunks
type MediaRecorder interface {
	// Start begins recording. onData receives chunks in emission order.
	Start(onData func(chunk []byte)) error
	// Stop ends recording and returns once every pending chunk has been
	// delivered to onData.
	Stop(ctx context.Context) error
}

// RecorderFactory creates a recorder for an acquired stream
type RecorderFactory func(stream MediaStream, mimeType string, timeslice time.Duration) (MediaRecorder, error)

// Options tune the controller. The constraint sets are configuration rather
// than fixed behavior.
type Options struct {
	MimeType     string
	Timeslice    time.Duration
	TickInterval time.Duration
	MaxChunks    int
	MaxBytes     int
	Microphone   AudioConstraints
	SystemAudio  DisplayConstraints
}

// OptionsFromConfig builds controller options from the capture config
func OptionsFromConfig(cfg config.CaptureConfig) Options {
	return Options{
		MimeType:     cfg.MimeType,
		Timeslice:    time.Duration(cfg.TimesliceMs) * time.Millisecond,
		TickInterval: time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		MaxChunks:    cfg.MaxChunks,
		MaxBytes:     cfg.MaxBytes,
		Microphone: AudioConstraints{
			EchoCancellation: cfg.Microphone.EchoCancellation,
			NoiseSuppression: cfg.Microphone.NoiseSuppression,
			AutoGainControl:  cfg.Microphone.AutoGainControl,
		},
		SystemAudio: DisplayConstraints{
			Audio: AudioConstraints{
				EchoCancellation: cfg.SystemAudio.EchoCancellation,
				NoiseSuppression: cfg.SystemAudio.NoiseSuppression,
				SampleRate:       cfg.SystemAudio.SampleRate,
			},
			Video: VideoConstraints{
				Width:     cfg.SystemAudio.VideoWidth,
				Height:    cfg.SystemAudio.VideoHeight,
				FrameRate: cfg.SystemAudio.VideoFrameRate,
			},
		},
	}
}

func tracksOfKind(stream MediaStream, kind TrackKind) []MediaTrack {
	var out []MediaTrack
	for _, t := range stream.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// stopTracks stops every track that is still live
func stopTracks(tracks []MediaTrack) {
	for _, t := range tracks {
		if t.State() != TrackEnded {
			t.Stop()
		}
	}
}
