package testhelpers

import (
	"errors"
	"sync"
)

// ErrRecorderFull is returned by FrameRecorder once its capacity is reached
var ErrRecorderFull = errors.New("recorder full")

// FrameRecorder is an Enqueuer that keeps every frame it receives
type FrameRecorder struct {
	mu       sync.Mutex
	frames   [][]byte
	lengths  []int
	Capacity int // 0 means unlimited
}

// Enqueue records the frame, failing once Capacity frames are held
func (r *FrameRecorder) Enqueue(frame []byte, length int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Capacity > 0 && len(r.frames) >= r.Capacity {
		return ErrRecorderFull
	}
	r.frames = append(r.frames, frame)
	r.lengths = append(r.lengths, length)
	return nil
}

// Frames returns a copy of the recorded frames
func (r *FrameRecorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// Lengths returns the length argument passed with each frame
func (r *FrameRecorder) Lengths() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.lengths...)
}

// Count returns the number of recorded frames
func (r *FrameRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}
