package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type mockTrack struct {
	id    string
	kind  TrackKind
	stops atomic.Int32
}

func (t *mockTrack) ID() string      { return t.id }
func (t *mockTrack) Kind() TrackKind { return t.kind }
func (t *mockTrack) Stop()           { t.stops.Add(1) }

func (t *mockTrack) State() TrackState {
	if t.stops.Load() > 0 {
		return TrackEnded
	}
	return TrackLive
}

type mockStream struct {
	tracks []*mockTrack
}

func newMockStream(kinds ...TrackKind) *mockStream {
	s := &mockStream{}
	for i, k := range kinds {
		s.tracks = append(s.tracks, &mockTrack{id: fmt.Sprintf("%s-%d", k, i), kind: k})
	}
	return s
}

func (s *mockStream) Tracks() []MediaTrack {
	out := make([]MediaTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *mockStream) allStopped() bool {
	for _, t := range s.tracks {
		if t.State() != TrackEnded {
			return false
		}
	}
	return true
}

type mockDevices struct {
	mu            sync.Mutex
	userStream    *mockStream
	displayStream *mockStream
	userErr       error
	displayErr    error
	userCalls     int
	displayCalls  int
	lastAudio     AudioConstraints
	lastDisplay   DisplayConstraints
}

func (d *mockDevices) GetUserMedia(_ context.Context, c AudioConstraints) (MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userCalls++
	d.lastAudio = c
	if d.userErr != nil {
		return nil, d.userErr
	}
	return d.userStream, nil
}

func (d *mockDevices) GetDisplayMedia(_ context.Context, c DisplayConstraints) (MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displayCalls++
	d.lastDisplay = c
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	return d.displayStream, nil
}

func (d *mockDevices) calls() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userCalls, d.displayCalls
}

// mockRecorder emits chunks on demand; pending chunks are delivered by Stop
type mockRecorder struct {
	mu       sync.Mutex
	onData   func([]byte)
	pending  [][]byte
	startErr error
	stopErr  error
	started  bool
	stopped  bool
}

func (r *mockRecorder) Start(onData func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.onData = onData
	r.started = true
	return nil
}

func (r *mockRecorder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.pending {
		r.onData(c)
	}
	r.pending = nil
	r.stopped = true
	return r.stopErr
}

func (r *mockRecorder) emit(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData(chunk)
}

func (r *mockRecorder) queue(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, chunk)
}

type recorderSet struct {
	mu        sync.Mutex
	recorders []*mockRecorder
	template  mockRecorder
	err       error
}

func (s *recorderSet) factory(MediaStream, string, time.Duration) (MediaRecorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	r := &mockRecorder{startErr: s.template.startErr, stopErr: s.template.stopErr}
	s.recorders = append(s.recorders, r)
	return r, nil
}

func (s *recorderSet) last() *mockRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorders[len(s.recorders)-1]
}

type mockRelay struct {
	mu       sync.Mutex
	text     string
	err      error
	payloads []string
	block    chan struct{}
}

func (r *mockRelay) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	r.mu.Lock()
	r.payloads = append(r.payloads, audioBase64)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, r.err
}

func (r *mockRelay) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
	hook  func(Notification)
}

func (n *recordingNotifier) Notify(note Notification) {
	n.mu.Lock()
	n.items = append(n.items, note)
	hook := n.hook
	n.mu.Unlock()
	if hook != nil {
		hook(note)
	}
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}
