package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/internal/audio"
	"github.com/yegors/voicenote/pkg/logger"
)

var (
	// ErrNotRecording is returned by Stop when no session is recording
	ErrNotRecording = errors.New("no active recording")
	// ErrControllerClosed is returned once Teardown has run
	ErrControllerClosed = errors.New("capture controller torn down")
)

// teardownFlushTimeout bounds how long Teardown waits for a recorder to stop
const teardownFlushTimeout = 5 * time.Second

// RelayClient submits base64 audio to the transcription relay
type RelayClient interface {
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
}

// Controller owns the record -> stop -> transcribe lifecycle. At most one
// recording session exists at a time.
type Controller struct {
	devices    MediaDevices
	recorders  RecorderFactory
	relay      RelayClient
	onComplete func(text string)
	notifier   Notifier
	opts       Options
	logger     *logger.Logger
	events     *broadcaster

	mu      sync.Mutex
	state   State
	session *RecordingSession
	closed  bool
}

// NewController creates a new capture controller. onComplete is invoked once
// per successful transcription with non-empty text.
func NewController(
	devices MediaDevices,
	recorders RecorderFactory,
	relay RelayClient,
	onComplete func(text string),
	notifier Notifier,
	opts Options,
	logger *logger.Logger,
) *Controller {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if onComplete == nil {
		onComplete = func(string) {}
	}
	if opts.MimeType == "" {
		opts.MimeType = audio.MimeTypeWebM
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	// Display capture insists on a video track; request the smallest one
	if opts.SystemAudio.Video.Width <= 0 {
		opts.SystemAudio.Video.Width = 1
	}
	if opts.SystemAudio.Video.Height <= 0 {
		opts.SystemAudio.Video.Height = 1
	}
	if opts.SystemAudio.Video.FrameRate <= 0 {
		opts.SystemAudio.Video.FrameRate = 1
	}

	return &Controller{
		devices:    devices,
		recorders:  recorders,
		relay:      relay,
		onComplete: onComplete,
		notifier:   notifier,
		opts:       opts,
		logger:     logger.Named("capture"),
		events:     newBroadcaster(),
		state:      StateIdle,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanStart reports whether Start would begin a new session. UIs use it to
// disable the record control.
func (c *Controller) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.state == StateIdle
}

// Elapsed returns the active session's elapsed seconds, or 0
func (c *Controller) Elapsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0
	}
	return c.session.Elapsed()
}

// Subscribe returns a channel of controller events and a function that
// cancels the subscription. Slow subscribers miss events rather than stall
// the controller.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Start acquires the chosen source and begins recording. A call made while a
// session is already in flight is ignored.
func (c *Controller) Start(ctx context.Context, source AudioSource) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state != StateIdle {
		c.logger.Debug("Start ignored, session already in flight",
			logger.String("state", string(c.state)))
		c.mu.Unlock()
		return nil
	}
	c.transitionLocked(StateAcquiring, nil)
	c.mu.Unlock()

	stream, err := c.acquire(ctx, source)
	if err != nil {
		c.fail(err, nil)
		return err
	}

	c.mu.Lock()

	// Teardown ran while acquisition was in flight
	if c.closed {
		stopTracks(stream.Tracks())
		c.transitionLocked(StateIdle, nil)
		c.mu.Unlock()
		return ErrControllerClosed
	}

	session := newSession(source, stream, c.opts)

	recorder, err := c.recorders(stream, c.opts.MimeType, c.opts.Timeslice)
	if err != nil {
		c.mu.Unlock()
		session.release()
		err = apperrors.Wrap(apperrors.KindSourceNotSupported, "start",
			fmt.Sprintf("Recording %s audio is not supported in this environment.", source), err)
		c.fail(err, session)
		return err
	}
	session.recorder = recorder

	if err := recorder.Start(session.appendChunk); err != nil {
		c.mu.Unlock()
		session.release()
		err = apperrors.Wrap(apperrors.KindDeviceAccessDenied, "start", deniedMessage(source), err)
		c.fail(err, session)
		return err
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	session.stopTicker = cancel
	session.tickerDone = make(chan struct{})
	go c.runTicker(tickCtx, session)

	c.session = session
	c.transitionLocked(StateRecording, session)
	c.mu.Unlock()

	c.logger.WithSessionID(session.ID).Info("Recording started", logger.String("source", source.String()))
	return nil
}

// Stop ends the active recording, transcribes it and returns the text.
// The controller is back in idle when Stop returns, whatever the outcome.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	session := c.session

	// The timer never outlives the recording state
	session.haltTicker()
	c.transitionLocked(StateStopping, session)
	c.mu.Unlock()

	log := c.logger.WithSessionID(session.ID)

	flushErr := session.recorder.Stop(ctx)
	payload := session.chunks.Seal(c.opts.MimeType)
	session.release()

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if n := session.dropped.Load(); n > 0 {
		log.Warn("Chunks dropped after buffer limit", logger.Int64("dropped", n))
	}

	if flushErr != nil {
		err := apperrors.Wrap(apperrors.KindEncodingFailure, "stop",
			"The recording could not be finalized.", flushErr)
		c.fail(err, session)
		return "", err
	}

	c.mu.Lock()
	c.transitionLocked(StateProcessing, session)
	c.mu.Unlock()

	log.Info("Recording stopped",
		logger.Int64("elapsed_seconds", session.Elapsed()),
		logger.Int("chunks", session.chunks.Len()),
		logger.Int("bytes", payload.Size()))

	return c.process(ctx, session, payload)
}

// process encodes the payload, submits it to the relay and delivers the result
func (c *Controller) process(ctx context.Context, session *RecordingSession, payload *audio.Payload) (string, error) {
	log := c.logger.WithSessionID(session.ID)

	encoded, err := audio.EncodeBase64(ctx, payload)
	if err != nil {
		err = apperrors.Wrap(apperrors.KindEncodingFailure, "encode",
			"The audio could not be processed.", err)
		c.fail(err, session)
		return "", err
	}

	log.Debug("Submitting audio to relay", logger.Int("base64_length", len(encoded)))

	text, err := c.relay.Transcribe(ctx, encoded)
	if err != nil {
		err = apperrors.Wrap(apperrors.KindRelayInvocationFailure, "transcribe",
			"The audio could not be converted to text.", err)
		c.fail(err, session)
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		warn := apperrors.New(apperrors.KindEmptyTranscript, "transcribe",
			"No speech was recognized in the recording.")
		c.notifier.Notify(Notification{
			Level:   LevelWarning,
			Title:   "Nothing recognized",
			Message: warn.UserMessage(),
			Kind:    warn.Kind,
		})
		log.Warn("Empty transcript")
		c.publish(Event{Type: EventFailed, SessionID: session.ID, Source: session.Source, Err: warn})

		c.mu.Lock()
		c.transitionLocked(StateIdle, session)
		c.mu.Unlock()
		return "", warn
	}

	c.onComplete(text)
	c.notifier.Notify(Notification{
		Level:   LevelSuccess,
		Title:   "Done",
		Message: "The audio was converted to text.",
	})
	log.Info("Transcription delivered", logger.Int("text_length", len(text)))
	c.publish(Event{Type: EventTranscribed, SessionID: session.ID, Source: session.Source, Text: text})

	c.mu.Lock()
	c.transitionLocked(StateIdle, session)
	c.mu.Unlock()
	return text, nil
}

// Teardown ends any session because the host is going away. Captured audio
// is discarded and the stream is released. The controller refuses new
// sessions afterwards; a transcription already in flight still completes.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	session := c.session
	recording := c.state == StateRecording
	if recording {
		c.session = nil
		session.haltTicker()
		c.transitionLocked(StateStopping, session)
	}
	c.mu.Unlock()

	if recording {
		ctx, cancel := context.WithTimeout(context.Background(), teardownFlushTimeout)
		if err := session.recorder.Stop(ctx); err != nil {
			c.logger.WithSessionID(session.ID).Warn("Recorder did not stop cleanly", logger.Error(err))
		}
		cancel()

		session.chunks.Seal(c.opts.MimeType)
		session.release()

		c.mu.Lock()
		c.transitionLocked(StateIdle, session)
		c.mu.Unlock()
		c.logger.WithSessionID(session.ID).Info("Recording discarded on teardown")
	}

	c.events.close()
}

// acquire requests a stream for source and validates it
func (c *Controller) acquire(ctx context.Context, source AudioSource) (MediaStream, error) {
	switch source {
	case SourceMicrophone:
		stream, err := c.devices.GetUserMedia(ctx, c.opts.Microphone)
		if err != nil {
			return nil, acquireError(source, err)
		}
		return stream, nil

	case SourceSystem:
		stream, err := c.devices.GetDisplayMedia(ctx, c.opts.SystemAudio)
		if err != nil {
			return nil, acquireError(source, err)
		}

		// The video track only exists because display capture demands one
		stopTracks(tracksOfKind(stream, TrackVideo))

		if len(tracksOfKind(stream, TrackAudio)) == 0 {
			stopTracks(stream.Tracks())
			return nil, apperrors.New(apperrors.KindNoAudioTrackCaptured, "acquire",
				"No system audio was shared. Choose a tab or screen again and enable audio sharing.")
		}
		return stream, nil

	default:
		return nil, apperrors.New(apperrors.KindSourceNotSupported, "acquire",
			fmt.Sprintf("Unknown audio source %s.", source))
	}
}

// runTicker increments the session's elapsed seconds until cancelled
func (c *Controller) runTicker(ctx context.Context, session *RecordingSession) {
	defer close(session.tickerDone)

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := session.elapsed.Add(1)
			c.publish(Event{
				Type:      EventTick,
				State:     StateRecording,
				SessionID: session.ID,
				Source:    session.Source,
				Elapsed:   n,
			})
		}
	}
}

// fail reports err to the user and returns the controller to idle.
// c.mu must not be held; the notifier may call back into the controller.
func (c *Controller) fail(err error, session *RecordingSession) {
	kind := apperrors.KindOf(err)

	log := c.logger
	ev := Event{Type: EventFailed, Err: err}
	if session != nil {
		log = log.WithSessionID(session.ID)
		ev.SessionID = session.ID
		ev.Source = session.Source
	}
	log.Error("Capture failed", logger.String("kind", string(kind)), logger.Error(err))

	c.mu.Lock()
	c.transitionLocked(StateError, session)
	c.mu.Unlock()

	c.notifier.Notify(Notification{
		Level:   LevelError,
		Title:   "Error",
		Message: apperrors.UserMessage(err),
		Kind:    kind,
	})
	c.publish(ev)

	c.mu.Lock()
	c.transitionLocked(StateIdle, session)
	c.mu.Unlock()
}

// transitionLocked moves to next if the table allows it. c.mu must be held.
func (c *Controller) transitionLocked(next State, session *RecordingSession) {
	if err := checkTransition(c.state, next); err != nil {
		c.logger.Error("Rejected state transition", logger.Error(err))
		return
	}

	prev := c.state
	c.state = next

	ev := Event{Type: EventStateChanged, State: next}
	if session != nil {
		ev.SessionID = session.ID
		ev.Source = session.Source
		ev.Elapsed = session.Elapsed()
	}
	c.logger.Debug("State changed",
		logger.String("from", string(prev)),
		logger.String("to", string(next)),
		logger.String("session_id", ev.SessionID))
	c.publish(ev)
}

func (c *Controller) publish(ev Event) {
	c.events.publish(ev)
}

// acquireError classifies a device adapter failure
func acquireError(source AudioSource, err error) error {
	var typed *apperrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, ErrNotSupported) {
		return apperrors.Wrap(apperrors.KindSourceNotSupported, "acquire",
			fmt.Sprintf("Capturing %s audio is not supported in this environment.", source), err)
	}
	return apperrors.Wrap(apperrors.KindDeviceAccessDenied, "acquire", deniedMessage(source), err)
}

func deniedMessage(source AudioSource) string {
	if source == SourceSystem {
		return "Could not capture system audio. Please allow screen or tab sharing with audio."
	}
	return "Could not access the microphone. Please grant microphone permission."
}
