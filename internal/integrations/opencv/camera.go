package opencv

import (
	"errors"
	"fmt"
	"image"

	"smart-attendance-go/config"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// ErrNoCamera is returned when no working capture device could be found.
var ErrNoCamera = errors.New("no working camera found")

// maxScanIndex bounds the device scan when no index is configured.
const maxScanIndex = 4

// Camera wraps an OpenCV capture device as a session.FrameSource.
type Camera struct {
	index   int
	capture *gocv.VideoCapture
}

// OpenCamera opens the configured capture device. A negative DeviceIndex
// scans indexes 0 through 4 and uses the first one that delivers a frame.
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	if cfg.DeviceIndex >= 0 {
		capture, err := openAndProbe(cfg.DeviceIndex)
		if err != nil {
			return nil, err
		}
		return &Camera{index: cfg.DeviceIndex, capture: capture}, nil
	}

	for idx := 0; idx <= maxScanIndex; idx++ {
		capture, err := openAndProbe(idx)
		if err != nil {
			log.Debugf("Camera index %d not usable: %v", idx, err)
			continue
		}
		log.Infof("Using camera at index %d", idx)
		return &Camera{index: idx, capture: capture}, nil
	}
	return nil, ErrNoCamera
}

// openAndProbe opens the device and verifies it actually delivers frames.
// Some backends report success on open but never produce an image.
func openAndProbe(index int) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("opening camera %d: %w", index, err)
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if ok := capture.Read(&probe); !ok || probe.Empty() {
		capture.Close()
		return nil, fmt.Errorf("camera %d opened but delivered no frame", index)
	}
	return capture, nil
}

// Index returns the device index in use.
func (c *Camera) Index() int {
	return c.index
}

// NextFrame reads a single frame from the device.
func (c *Camera) NextFrame() (image.Image, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("camera %d: failed to read frame", c.index)
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera %d: converting frame: %w", c.index, err)
	}
	return img, nil
}

// Close releases the capture device.
func (c *Camera) Close() error {
	return c.capture.Close()
}

// ListCameras probes indexes 0 through 4 and reports which deliver frames.
func ListCameras() []int {
	var available []int
	for idx := 0; idx <= maxScanIndex; idx++ {
		capture, err := openAndProbe(idx)
		if err != nil {
			continue
		}
		capture.Close()
		available = append(available, idx)
	}
	return available
}
