package session

import (
	"errors"
	"fmt"
	"image"
	"time"

	"smart-attendance-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// ErrCameraUnavailable terminates a session when the frame source dies.
var ErrCameraUnavailable = errors.New("camera unavailable")

// FrameSource delivers frames from a capture device. Implementations own
// the backend-specific camera handling; the loop only asks for the next
// frame.
type FrameSource interface {
	NextFrame() (image.Image, error)
	Close() error
}

// FaceDetector locates face regions in a frame. Detection is an external
// collaborator of the pipeline; the loop crops the reported regions and
// hands them to the orchestrator.
type FaceDetector interface {
	DetectFaces(frame image.Image) ([]image.Rectangle, error)
}

// FrameHook receives each frame with its observations, e.g. to render an
// annotated preview stream.
type FrameHook func(frame image.Image, observations []Observation)

// Runner drives one tracking session: read a frame, detect faces, run each
// face through the orchestrator, repeat. Everything happens synchronously
// on one goroutine; the ledger's file I/O is fast enough to block a frame.
type Runner struct {
	Source       FrameSource
	Detector     FaceDetector
	Orchestrator *Orchestrator
	// Interval is the pause between frames. Zero means no pause.
	Interval time.Duration
	// OnFrame, if set, is called after each frame is processed.
	OnFrame FrameHook
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropFace extracts a face region from a frame, clamped to the frame
// bounds. Enrollment handlers use it too, so the recognition loop and
// enrollment crop identically.
func CropFace(frame image.Image, box image.Rectangle) image.Image {
	box = box.Intersect(frame.Bounds())
	if s, ok := frame.(subImager); ok {
		return s.SubImage(box)
	}
	// Decoded frames are always one of the stdlib raster types, all of
	// which implement SubImage; this path only serves synthetic images in
	// tests.
	crop := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			crop.Set(x, y, frame.At(box.Min.X+x, box.Min.Y+y))
		}
	}
	return crop
}

// Run processes frames until stop is closed or the source fails. The stop
// flag is checked once per frame boundary; in-flight faces of the current
// frame always complete.
func (r *Runner) Run(stop <-chan struct{}) error {
	defer func() {
		if err := r.Source.Close(); err != nil {
			log.WithError(err).Warn("Failed to close frame source")
		}
	}()

	log.Info("Recognition session started")
	for {
		select {
		case <-stop:
			log.Info("Recognition session stopped")
			return nil
		default:
		}

		frame, err := r.Source.NextFrame()
		if err != nil {
			log.WithError(err).Error("Frame source failed, ending session")
			return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}

		now := timezone.Now()
		boxes, err := r.Detector.DetectFaces(frame)
		if err != nil {
			// Detection failures degrade to an empty frame rather than
			// ending the session.
			log.WithError(err).Warn("Face detection failed for frame")
			boxes = nil
		}

		observations := make([]Observation, 0, len(boxes))
		for _, box := range boxes {
			face := CropFace(frame, box)
			observations = append(observations, r.Orchestrator.ProcessFace(face, box, now))
		}

		if r.OnFrame != nil {
			r.OnFrame(frame, observations)
		}

		if r.Interval > 0 {
			select {
			case <-stop:
				log.Info("Recognition session stopped")
				return nil
			case <-time.After(r.Interval):
			}
		}
	}
}
