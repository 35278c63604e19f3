package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/troikatech/voice-core/pkg/metrics"
)

// Entry is one pre-synthesized audio response. Entries are immutable after
// insertion; readers share the byte slice and must not modify it.
type Entry struct {
	Audio       []byte
	ContentType string
}

// ResponseCache maps (voiceID, normalized text) to synthesized audio so
// common phrases (greetings, acknowledgments) skip the synthesis provider
// entirely. Capacity-bounded with LRU eviction; entries never expire by time.
type ResponseCache struct {
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	inflight map[string]*synthCall
}

type cacheItem struct {
	key   string
	entry Entry
}

type synthCall struct {
	done  chan struct{}
	entry Entry
	err   error
}

// New creates a response cache holding at most capacity entries.
func New(capacity int, logger *zap.Logger) *ResponseCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &ResponseCache{
		capacity: capacity,
		logger:   logger,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]*synthCall),
	}
}

// NormalizeText canonicalizes a phrase for cache addressing: lowercase,
// whitespace collapsed, surrounding space trimmed.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Key derives the content address for a (voiceID, text) pair.
func Key(voiceID, text string) string {
	h := sha256.New()
	h.Write([]byte(voiceID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached audio for (voiceID, text) if present.
func (c *ResponseCache) Get(voiceID, text string) (Entry, bool) {
	key := Key(voiceID, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	metrics.RecordCacheLookup(ok)
	if !ok {
		return Entry{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).entry, true
}

// Put inserts or replaces the audio for (voiceID, text), evicting the least
// recently used entry when over capacity.
func (c *ResponseCache) Put(voiceID, text string, entry Entry) {
	key := Key(voiceID, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, entry)
}

func (c *ResponseCache) put(key string, entry Entry) {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheItem).entry = entry
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheItem{key: key, entry: entry})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).key)
	}
}

// GetOrSynthesize returns the cached audio for (voiceID, text), invoking
// synth at most once per key across concurrent callers on a miss. The hit
// result reports whether the audio came from the cache without invoking
// synth in this call.
func (c *ResponseCache) GetOrSynthesize(
	ctx context.Context,
	voiceID, text string,
	synth func(context.Context) (Entry, error),
) (Entry, bool, error) {
	key := Key(voiceID, text)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheItem).entry
		c.mu.Unlock()
		metrics.RecordCacheLookup(true)
		return entry, true, nil
	}
	metrics.RecordCacheLookup(false)

	if call, ok := c.inflight[key]; ok {
		// Another caller is already synthesizing this phrase; wait for it.
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.entry, call.err == nil, call.err
		case <-ctx.Done():
			return Entry{}, false, ctx.Err()
		}
	}

	call := &synthCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.entry, call.err = synth(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if call.err == nil {
		c.put(key, call.entry)
	}
	c.mu.Unlock()
	close(call.done)

	if call.err != nil {
		c.logger.Debug("synthesis for cache fill failed", zap.Error(call.err))
	}
	return call.entry, false, call.err
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
