package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TrackState is the lifecycle of a local media resource. The explicit
// machine keeps toggling and teardown from racing: a track is only ever
// stopped once, from exactly one state.
type TrackState string

const (
	TrackAcquiring TrackState = "acquiring"
	TrackActive    TrackState = "active"
	TrackClosing   TrackState = "closing"
	TrackClosed    TrackState = "closed"
)

// MediaTrack is a local capture resource owned by the device layer.
type MediaTrack interface {
	Kind() string
	Stop() error
}

// MediaDevices acquires local capture resources. Acquisition is fallible:
// no device, permission denied.
type MediaDevices interface {
	AcquireMicrophone(ctx context.Context) (MediaTrack, error)
	AcquireCamera(ctx context.Context) (MediaTrack, error)
}

// trackHandle pairs a track with its lifecycle state.
type trackHandle struct {
	mu    sync.Mutex
	track MediaTrack
	state TrackState
}

func newTrackHandle() *trackHandle {
	return &trackHandle{state: TrackAcquiring}
}

// activate binds the acquired track. Returns false when teardown already
// started, in which case the caller must stop the track itself.
func (h *trackHandle) activate(track MediaTrack) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != TrackAcquiring {
		return false
	}
	h.track = track
	h.state = TrackActive
	return true
}

// close transitions to closed, stopping the track when one is active.
// Idempotent; concurrent closers race on the closing state, not the track.
func (h *trackHandle) close() error {
	h.mu.Lock()
	if h.state == TrackClosing || h.state == TrackClosed {
		h.mu.Unlock()
		return nil
	}
	track := h.track
	h.state = TrackClosing
	h.mu.Unlock()

	var err error
	if track != nil {
		err = track.Stop()
	}

	h.mu.Lock()
	h.state = TrackClosed
	h.track = nil
	h.mu.Unlock()
	return err
}

// localMedia owns the microphone and camera handles for one session.
type localMedia struct {
	log    *slog.Logger
	mic    *trackHandle
	camera *trackHandle
}

func newLocalMedia(log *slog.Logger) *localMedia {
	return &localMedia{
		log:    log,
		mic:    newTrackHandle(),
		camera: newTrackHandle(),
	}
}

// acquire obtains local capture. Camera failure degrades to audio-only and
// is reported as recoverable; microphone failure is returned as-is and the
// join still completes without local media.
func (m *localMedia) acquire(ctx context.Context, devices MediaDevices) error {
	mic, err := devices.AcquireMicrophone(ctx)
	if err != nil {
		// close() owns the state transition; a concurrent teardown may
		// already hold the handle locks.
		_ = m.mic.close()
		_ = m.camera.close()
		return &RecoverableError{Err: err}
	}
	if !m.mic.activate(mic) {
		_ = mic.Stop()
	}

	cam, err := devices.AcquireCamera(ctx)
	if err != nil {
		_ = m.camera.close()
		return &RecoverableError{Err: ErrMediaDegraded}
	}
	if !m.camera.activate(cam) {
		_ = cam.Stop()
	}
	return nil
}

// teardown stops both tracks, bounded by timeout so a wedged device driver
// cannot block leave or end. After the timeout the control-plane teardown
// proceeds regardless.
func (m *localMedia) teardown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.mic.close(); err != nil {
			m.log.Warn("failed to stop microphone", "error", err)
		}
		if err := m.camera.close(); err != nil {
			m.log.Warn("failed to stop camera", "error", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.log.Warn("media teardown timed out, releasing session state anyway")
	}
}

// remoteRenderer attaches remote participants' media at most once per
// (participant, kind), tolerating duplicate published notifications.
type remoteRenderer struct {
	mu     sync.Mutex
	seen   map[string]bool
	attach func(participantID, kind string)
}

func newRemoteRenderer(attach func(participantID, kind string)) *remoteRenderer {
	return &remoteRenderer{
		seen:   make(map[string]bool),
		attach: attach,
	}
}

// onPublished renders a remote track unless it was already attached.
func (r *remoteRenderer) onPublished(participantID, kind string) {
	key := participantID + "/" + kind
	r.mu.Lock()
	if r.seen[key] {
		r.mu.Unlock()
		return
	}
	r.seen[key] = true
	r.mu.Unlock()

	if r.attach != nil {
		r.attach(participantID, kind)
	}
}
