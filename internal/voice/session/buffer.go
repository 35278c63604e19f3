package session

import (
	"sync"
	"time"
)

// AudioBuffer accumulates inbound PCM until there is enough speech to
// transcribe, either by size or by a silence window elapsing with data
// pending.
type AudioBuffer struct {
	mu          sync.Mutex
	chunks      [][]byte
	totalSize   int
	maxSize     int
	silenceWait time.Duration
	lastDrain   time.Time
}

func NewAudioBuffer(maxSize int, silenceWait time.Duration) *AudioBuffer {
	if maxSize <= 0 {
		maxSize = 32 * 1024
	}
	if silenceWait <= 0 {
		silenceWait = 1500 * time.Millisecond
	}
	return &AudioBuffer{
		maxSize:     maxSize,
		silenceWait: silenceWait,
		lastDrain:   time.Now(),
	}
}

// Append adds an audio chunk to the buffer.
func (ab *AudioBuffer) Append(chunk []byte) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.chunks = append(ab.chunks, chunk)
	ab.totalSize += len(chunk)
}

// Ready reports whether the buffer should be drained for transcription:
// full, or non-empty with the silence window elapsed since last drain.
func (ab *AudioBuffer) Ready() bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.totalSize >= ab.maxSize {
		return true
	}
	return ab.totalSize > 0 && time.Since(ab.lastDrain) >= ab.silenceWait
}

// Drain returns the buffered audio and resets the buffer.
func (ab *AudioBuffer) Drain() []byte {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	data := make([]byte, 0, ab.totalSize)
	for _, chunk := range ab.chunks {
		data = append(data, chunk...)
	}
	ab.chunks = ab.chunks[:0]
	ab.totalSize = 0
	ab.lastDrain = time.Now()
	return data
}

// Size returns the number of buffered bytes.
func (ab *AudioBuffer) Size() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.totalSize
}
