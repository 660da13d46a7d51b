// Package stream turns a chunked server-sent-event body into interpreted
// progress events.
package stream

import (
	"iter"
	"strings"
)

// FrameBoundary separates logical frames on the wire.
const FrameBoundary = "\n\n"

// Frame is one complete logical frame without its trailing boundary.
type Frame struct {
	Raw string
}

// Reassembler buffers arbitrary chunks and hands out complete frames.
// It is not safe for concurrent use; one reader owns it.
type Reassembler struct {
	buf string
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends chunk and returns the frames it completed, in order.
//
// The sequence is lazy: each frame is sliced off the buffer only when the
// consumer pulls it. A consumer that stops early leaves the unread frames
// buffered for the next Feed call.
func (r *Reassembler) Feed(chunk string) iter.Seq[Frame] {
	r.buf += chunk
	return func(yield func(Frame) bool) {
		for {
			i := strings.Index(r.buf, FrameBoundary)
			if i < 0 {
				return
			}
			raw := r.buf[:i]
			r.buf = r.buf[i+len(FrameBoundary):]
			if !yield(Frame{Raw: raw}) {
				return
			}
		}
	}
}

// FeedBytes is Feed for raw transport reads. Multi-byte characters split
// across reads are rejoined because the buffer is byte-oriented.
func (r *Reassembler) FeedBytes(chunk []byte) iter.Seq[Frame] {
	return r.Feed(string(chunk))
}

// Pending returns the number of buffered bytes that do not yet form a frame.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset drops any buffered partial frame.
func (r *Reassembler) Reset() {
	r.buf = ""
}
