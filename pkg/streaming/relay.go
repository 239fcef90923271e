// Package streaming relays live upstream response bodies to clients and
// summarizes what went through for telemetry.
package streaming

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// Flavor tags the provider framing of an endpoint's events.
type Flavor string

const (
	FlavorGeneric   Flavor = "generic"
	FlavorVertexAI  Flavor = "vertex-ai"
	FlavorAnthropic Flavor = "anthropic"
)

// DefaultChunkSize is the read size used by DefaultRelay.
const DefaultChunkSize = 32 * 1024

// Summary describes a completed stream.
type Summary struct {
	Flavor    Flavor
	Model     string
	Usage     hooks.Usage
	Chunks    int
	Bytes     int64
	Captured  []byte
	Truncated bool
	EndTime   time.Time
}

// Options configures one relay.
type Options struct {
	Flavor Flavor

	// MaxCapture bounds the bytes kept for Summary.Captured. Zero keeps
	// nothing; the summary is then empty apart from the counters.
	MaxCapture int

	// RequestBody is the parsed request that started the stream.
	RequestBody any

	StartTime time.Time

	// OnComplete is called exactly once when the upstream body ends
	// cleanly and every chunk was accepted by the consumer.
	OnComplete func(Summary)
}

// ChunkRelay turns a live upstream body into a lazy sequence of chunks.
//
// The sequence is forward-only and single-use. A chunk is only valid until
// the next iteration step. Iteration stops after the first error.
type ChunkRelay interface {
	Relay(ctx context.Context, body io.Reader, opts Options) iter.Seq2[[]byte, error]
}

// DefaultRelay yields each upstream read as one chunk.
type DefaultRelay struct {
	ChunkSize int
}

// Relay implements ChunkRelay.
func (r DefaultRelay) Relay(ctx context.Context, body io.Reader, opts Options) iter.Seq2[[]byte, error] {
	size := r.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	return func(yield func([]byte, error) bool) {
		buf := make([]byte, size)
		capture := newCapture(opts.MaxCapture)
		var chunks int
		var total int64

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			n, err := body.Read(buf)
			if n > 0 {
				chunks++
				total += int64(n)
				capture.write(buf[:n])
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}

		if opts.OnComplete == nil {
			return
		}
		s := Summarize(opts.Flavor, capture.bytes())
		s.Chunks = chunks
		s.Bytes = total
		s.Truncated = capture.truncated
		s.EndTime = time.Now()
		opts.OnComplete(s)
	}
}

type capture struct {
	limit     int
	buf       []byte
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) write(p []byte) {
	room := c.limit - len(c.buf)
	if room <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return
	}
	if len(p) > room {
		p = p[:room]
		c.truncated = true
	}
	c.buf = append(c.buf, p...)
}

func (c *capture) bytes() []byte {
	return c.buf
}
