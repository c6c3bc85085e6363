package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/voicenote/internal/audio"
)

// RecordingSession is the state of one in-progress recording. It owns the
// stream exclusively and releases it exactly once.
type RecordingSession struct {
	ID        string
	Source    AudioSource
	StartedAt time.Time

	stream   MediaStream
	recorder MediaRecorder
	chunks   *audio.ChunkBuffer
	elapsed  atomic.Int64
	dropped  atomic.Int64

	releaseOnce sync.Once
	stopTicker  context.CancelFunc
	tickerDone  chan struct{}
}

func newSession(source AudioSource, stream MediaStream, opts Options) *RecordingSession {
	return &RecordingSession{
		ID:         uuid.NewString(),
		Source:     source,
		StartedAt:  time.Now(),
		stream:     stream,
		chunks:     audio.NewChunkBuffer(opts.MaxChunks, opts.MaxBytes),
		stopTicker: func() {},
		tickerDone: closedChan(),
	}
}

// Elapsed returns the number of whole seconds the session has been recording
func (s *RecordingSession) Elapsed() int64 {
	return s.elapsed.Load()
}

// appendChunk is the recorder's data callback
func (s *RecordingSession) appendChunk(chunk []byte) {
	if err := s.chunks.Append(chunk); err != nil {
		s.dropped.Add(1)
	}
}

// release stops every track of the stream. Only the first call has effect.
func (s *RecordingSession) release() {
	s.releaseOnce.Do(func() {
		if s.stream != nil {
			stopTracks(s.stream.Tracks())
		}
	})
}

// haltTicker stops the elapsed-time ticker and waits for it to exit
func (s *RecordingSession) haltTicker() {
	s.stopTicker()
	<-s.tickerDone
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
