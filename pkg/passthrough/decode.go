package passthrough

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeBody wraps body with decoders for the given Content-Encoding.
// Encodings are undone in reverse order of application. Unknown encodings
// are an error because the encoding header is never relayed.
func decodeBody(contentEncoding string, body io.ReadCloser) (io.ReadCloser, error) {
	var encodings []string
	for e := range strings.SplitSeq(contentEncoding, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" && e != "identity" {
			encodings = append(encodings, e)
		}
	}
	if len(encodings) == 0 {
		return body, nil
	}

	var r io.Reader = body
	closers := []io.Closer{body}
	for _, enc := range slices.Backward(encodings) {
		dr, closer, err := newDecoder(enc, r)
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("decode %s response: %w", enc, err)
		}
		r = dr
		if closer != nil {
			closers = append(closers, closer)
		}
	}
	return &decodedBody{Reader: r, closers: closers}, nil
}

func newDecoder(encoding string, r io.Reader) (io.Reader, io.Closer, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	case "deflate":
		return newDeflateReader(r)
	case "br":
		return brotli.NewReader(r), nil, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, closerFunc(zr.Close), nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// newDeflateReader accepts both the zlib-wrapped stream HTTP specifies and
// the raw deflate stream some servers send instead.
func newDeflateReader(r io.Reader) (io.Reader, io.Closer, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	}
	fr := flate.NewReader(br)
	return fr, fr, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for _, c := range slices.Backward(b.closers) {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
