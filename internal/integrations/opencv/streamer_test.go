package opencv

import (
	"bytes"
	"testing"
	"time"
)

func TestStreamerLatestBeforeFirstFrame(t *testing.T) {
	s := NewStreamer()
	if frame, ok := s.Latest(); ok || frame != nil {
		t.Errorf("Latest on empty streamer = (%v, %v), want (nil, false)", frame, ok)
	}
}

func TestStreamerNextDeliversNewerFrame(t *testing.T) {
	s := NewStreamer()
	want := []byte{0xff, 0xd8, 0x01}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.publish(want)
	}()

	result := make(chan []byte, 1)
	go func() {
		frame, seq, ok := s.Next(0, nil)
		if !ok || seq != 1 {
			t.Errorf("Next = (seq %d, ok %v), want (1, true)", seq, ok)
		}
		result <- frame
	}()

	select {
	case frame := <-result:
		if !bytes.Equal(frame, want) {
			t.Errorf("Next returned %v, want %v", frame, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after a frame was published")
	}
}

func TestStreamerNextUnblocksOnDone(t *testing.T) {
	s := NewStreamer()
	done := make(chan struct{})

	returned := make(chan bool, 1)
	go func() {
		_, _, ok := s.Next(0, done)
		returned <- ok
	}()

	// No session is running, so no frame will ever arrive; closing done is
	// the only way out.
	time.Sleep(20 * time.Millisecond)
	close(done)

	select {
	case ok := <-returned:
		if ok {
			t.Error("Next reported a frame after done closed, want ok false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next stayed blocked after done closed")
	}
}

func TestStreamerNextPrefersFrameOverClosedDone(t *testing.T) {
	s := NewStreamer()
	s.publish([]byte{0xff})

	done := make(chan struct{})
	close(done)

	frame, seq, ok := s.Next(0, done)
	if !ok || seq != 1 || frame == nil {
		t.Errorf("Next with a frame already available = (%v, %d, %v), want the frame", frame, seq, ok)
	}
}
