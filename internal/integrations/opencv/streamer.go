package opencv

import (
	"image"
	"image/color"
	"sync"

	"smart-attendance-go/internal/core/matcher"
	"smart-attendance-go/internal/core/session"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

var (
	boxKnown   = color.RGBA{0, 255, 0, 0}
	boxUnknown = color.RGBA{255, 0, 0, 0}
)

// Streamer holds the most recent annotated camera frame as JPEG bytes for
// the MJPEG preview endpoint. Recognized faces get a green box with the
// identity name, unrecognized ones a red box.
type Streamer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame []byte
	seq   uint64
}

func NewStreamer() *Streamer {
	s := &Streamer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Update annotates the frame with the observations and stores the encoded
// result. It satisfies session.FrameHook.
func (s *Streamer) Update(frame image.Image, observations []session.Observation) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		log.WithError(err).Debug("Preview: failed to convert frame")
		return
	}
	defer mat.Close()

	for _, obs := range observations {
		boxColor := boxUnknown
		label := matcher.Unknown
		if obs.Known() {
			boxColor = boxKnown
			label = obs.Name
		}
		gocv.Rectangle(&mat, obs.Box, boxColor, 2)
		gocv.PutText(&mat, label,
			image.Pt(obs.Box.Min.X, obs.Box.Min.Y-10),
			gocv.FontHersheySimplex, 0.9, boxColor, 2)
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		log.WithError(err).Debug("Preview: failed to encode frame")
		return
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	s.publish(encoded)
}

func (s *Streamer) publish(encoded []byte) {
	s.mu.Lock()
	s.frame = encoded
	s.seq++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Latest returns the current frame without waiting. The second return is
// false when no frame has been published yet.
func (s *Streamer) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// Next blocks until a frame newer than afterSeq is available, or until done
// is closed. The third return is false when the wait was abandoned; no
// frames arrive while no session is running, so callers must pass their
// connection's done channel to get unparked. Stored frames are never
// mutated, so the returned slice is safe to use without copying.
func (s *Streamer) Next(afterSeq uint64, done <-chan struct{}) ([]byte, uint64, bool) {
	finished := make(chan struct{})
	defer close(finished)

	// cond.Wait cannot select on done, so a watcher turns the close into a
	// broadcast. Taking the lock first keeps the wakeup from slipping in
	// between the waiter's done check and its cond.Wait.
	go func() {
		select {
		case <-done:
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-finished:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.seq <= afterSeq {
		select {
		case <-done:
			return nil, afterSeq, false
		default:
		}
		s.cond.Wait()
	}
	return s.frame, s.seq, true
}
