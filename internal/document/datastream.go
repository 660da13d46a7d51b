package document

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// DeltaTypeText is the only delta type written by document handlers.
const DeltaTypeText = "text-delta"

// Delta is one live-typing annotation.
type Delta struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// NewTextDelta builds a text delta with a fresh id.
func NewTextDelta(text string) Delta {
	return Delta{ID: uuid.NewString(), Type: DeltaTypeText, Delta: text}
}

// DataStream is the append-only side channel handlers announce writes on.
// Nothing written to it is ever read back as document state.
type DataStream interface {
	Write(d Delta)
}

// RingStream keeps the most recent deltas in a fixed-size ring, dropping the
// oldest once full.
type RingStream struct {
	mu   sync.RWMutex
	buf  []Delta
	head int
	full bool
}

// NewRingStream creates a ring holding up to size deltas (256 when size <= 0).
func NewRingStream(size int) *RingStream {
	if size <= 0 {
		size = 256
	}
	return &RingStream{buf: make([]Delta, size)}
}

// Write appends d, overwriting the oldest delta when full.
func (r *RingStream) Write(d Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = d
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// Deltas returns the retained deltas, oldest first.
func (r *RingStream) Deltas() []Delta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Delta, r.head)
		copy(out, r.buf[:r.head])
		return out
	}
	out := make([]Delta, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Len returns the number of retained deltas.
func (r *RingStream) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.head
}

// Capacity returns the ring size.
func (r *RingStream) Capacity() int {
	return len(r.buf)
}

// defaultMaxDocuments bounds how many document rings a Streams keeps.
const defaultMaxDocuments = 1024

// Streams hands out one RingStream per document id. It keeps at most
// maxDocuments rings and forgets the least recently used one beyond that.
type Streams struct {
	mu           sync.Mutex
	size         int
	maxDocuments int
	order        *list.List // front is most recently used
	streams      map[string]*list.Element
}

type streamEntry struct {
	documentID string
	ring       *RingStream
}

// NewStreams creates a registry whose rings hold size deltas each, for up to
// maxDocuments documents (1024 when maxDocuments <= 0).
func NewStreams(size, maxDocuments int) *Streams {
	if maxDocuments <= 0 {
		maxDocuments = defaultMaxDocuments
	}
	return &Streams{
		size:         size,
		maxDocuments: maxDocuments,
		order:        list.New(),
		streams:      make(map[string]*list.Element),
	}
}

// For returns the ring for a document, creating it on first use.
func (s *Streams) For(documentID string) *RingStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.streams[documentID]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*streamEntry).ring
	}

	rs := NewRingStream(s.size)
	s.streams[documentID] = s.order.PushFront(&streamEntry{documentID: documentID, ring: rs})
	for s.order.Len() > s.maxDocuments {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.streams, oldest.Value.(*streamEntry).documentID)
	}
	return rs
}

// Lookup returns the ring for a document if it is still retained.
func (s *Streams) Lookup(documentID string) (*RingStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.streams[documentID]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*streamEntry).ring, true
}

// Len returns the number of retained rings.
func (s *Streams) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
