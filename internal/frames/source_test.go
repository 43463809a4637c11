package frames

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedDevice struct {
	mu     sync.Mutex
	frames []Frame
	errs   []error
	reads  int
	closed bool
}

func (d *scriptedDevice) ReadFrame(ctx context.Context) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return Frame{}, err
		}
	}
	if len(d.frames) == 0 {
		time.Sleep(time.Millisecond)
		return Frame{}, ErrNoFrame
	}
	frame := d.frames[0]
	d.frames = d.frames[1:]
	return frame, nil
}

func (d *scriptedDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSourceKeepsNewestFrame(t *testing.T) {
	device := &scriptedDevice{frames: []Frame{
		{Data: []byte("one")},
		{Data: []byte("two")},
	}}
	var hooked int
	var hookMu sync.Mutex
	source := NewSource(device, WithFrameHook(func(Frame) {
		hookMu.Lock()
		hooked++
		hookMu.Unlock()
	}))
	if source.Current() != nil {
		t.Fatal("expected nil frame before acquisition")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	waitFor(t, func() bool {
		frame := source.Current()
		return frame != nil && string(frame.Data) == "two"
	})
	if !source.Active() {
		t.Fatal("expected source to be active")
	}
	frame := source.Current()
	if frame.Seq != 2 || frame.Timestamp.IsZero() {
		t.Fatalf("unexpected frame metadata: seq=%d ts=%v", frame.Seq, frame.Timestamp)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if source.Active() {
		t.Fatal("source should be inactive after Run returns")
	}
	if source.Current() == nil {
		t.Fatal("last frame should survive shutdown")
	}
	hookMu.Lock()
	defer hookMu.Unlock()
	if hooked != 2 {
		t.Fatalf("frame hook called %d times, want 2", hooked)
	}
}

func TestSourceCurrentIsCopy(t *testing.T) {
	source := NewSource(&scriptedDevice{})
	source.store(Frame{Data: []byte("abc")})

	first := source.Current()
	first.Data[0] = 'X'
	if got := string(source.Current().Data); got != "abc" {
		t.Fatalf("stored frame mutated through copy: %q", got)
	}
}

func TestSourceRetainsFrameOnReadError(t *testing.T) {
	device := &scriptedDevice{
		frames: []Frame{{Data: []byte("good")}},
		errs:   []error{nil, errors.New("usb reset")},
	}
	source := NewSource(device)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	waitFor(t, func() bool {
		device.mu.Lock()
		defer device.mu.Unlock()
		return device.reads >= 2
	})
	frame := source.Current()
	if frame == nil || string(frame.Data) != "good" {
		t.Fatalf("expected previous frame to be retained, got %+v", frame)
	}
}

func TestSourceClose(t *testing.T) {
	device := &scriptedDevice{}
	if err := NewSource(device).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !device.closed {
		t.Fatal("device not closed")
	}
}
