package opencv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"smart-attendance-go/config"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

var (
	// ErrNoFace is returned when an enrollment capture contains no face.
	ErrNoFace = errors.New("no face detected in image")
	// ErrMultipleFaces is returned when an enrollment capture contains
	// more than one face; enrollment needs exactly one person in frame.
	ErrMultipleFaces = errors.New("multiple faces detected in image")
)

// FaceDetector locates face regions with a Haar cascade classifier. It
// implements the session.FaceDetector contract for the recognition loop and
// additionally validates enrollment captures.
type FaceDetector struct {
	cfg config.CameraConfig

	// The cascade classifier is not safe for concurrent use; detection
	// runs from both the session loop and enrollment handlers.
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
	loaded  bool
}

// NewFaceDetector loads the Haar cascade from the configured path.
func NewFaceDetector(cfg config.CameraConfig) (*FaceDetector, error) {
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadeFile) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load Haar cascade from %s", cfg.CascadeFile)
	}
	log.Infof("Loaded Haar cascade from %s", cfg.CascadeFile)
	return &FaceDetector{cfg: cfg, cascade: cascade, loaded: true}, nil
}

// Close releases the classifier.
func (d *FaceDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.cascade.Close()
		d.loaded = false
	}
}

// DetectFaces returns the face bounding boxes found in the frame.
func (d *FaceDetector) DetectFaces(frame image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, errors.New("face detector is closed")
	}

	minSize := image.Pt(d.cfg.MinSize, d.cfg.MinSize)
	boxes := d.cascade.DetectMultiScaleWithParams(
		gray,
		d.cfg.ScaleFactor,
		d.cfg.MinNeighbors,
		0,
		minSize,
		image.Pt(0, 0),
	)
	return boxes, nil
}

// DetectSingle validates an enrollment capture: exactly one face must be
// present. Returns the face region on success.
func (d *FaceDetector) DetectSingle(frame image.Image) (image.Rectangle, error) {
	boxes, err := d.DetectFaces(frame)
	if err != nil {
		return image.Rectangle{}, err
	}
	switch len(boxes) {
	case 0:
		return image.Rectangle{}, ErrNoFace
	case 1:
		return boxes[0], nil
	default:
		return image.Rectangle{}, ErrMultipleFaces
	}
}
