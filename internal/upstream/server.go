// Package upstream provides an httptest upstream used by gateway tests.
// It serves canned responses per path and records every request it saw.
package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Server is a mock upstream.
type Server struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]Response
	requests  []Request
}

// Response is a canned upstream response.
type Response struct {
	StatusCode int

	// Body is written as-is for string and []byte, JSON-encoded otherwise.
	Body    any
	Headers map[string]string
	Delay   time.Duration

	// StreamChunks turns the response into a text/event-stream. Each
	// chunk is written as one "data:" event, followed by [DONE].
	StreamChunks []string

	// ChunkDelay pauses between stream chunks.
	ChunkDelay time.Duration

	// Encoding compresses the body and sets Content-Encoding:
	// "gzip", "br" or "zstd".
	Encoding string
}

// Request is a request as received by the upstream.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// NewServer starts a mock upstream. Close it when done.
func NewServer() *Server {
	s := &Server{responses: make(map[string]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// SetResponse configures the response served for path.
func (s *Server) SetResponse(path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = resp
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// LastRequest returns the most recent request, or false when none arrived.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if len(resp.StreamChunks) > 0 {
		s.stream(w, r, resp)
		return
	}

	payload := bodyBytes(resp.Body)
	if resp.Encoding != "" {
		payload = compress(resp.Encoding, payload)
		w.Header().Set("Content-Encoding", resp.Encoding)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	flusher, _ := w.(http.Flusher)
	for _, chunk := range resp.StreamChunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
		if resp.ChunkDelay > 0 {
			select {
			case <-time.After(resp.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func bodyBytes(v any) []byte {
	switch b := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(b)
	case []byte:
		return b
	default:
		data, _ := json.Marshal(b)
		return data
	}
}

func compress(encoding string, data []byte) []byte {
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(data)
		_ = zw.Close()
	case "br":
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write(data)
		_ = bw.Close()
	case "zstd":
		zw, _ := zstd.NewWriter(&buf)
		_, _ = zw.Write(data)
		_ = zw.Close()
	default:
		return data
	}
	return buf.Bytes()
}

// OpenAIResponse builds a chat completion body with usage.
func OpenAIResponse(content, model string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-123",
		"object": "chat.completion",
		"model":  model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// OpenAIStreamChunk builds one streamed chat completion chunk.
func OpenAIStreamChunk(model, delta string, usage bool) string {
	chunk := map[string]any{
		"id":     "chatcmpl-123",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": delta},
		}},
	}
	if usage {
		chunk["usage"] = map[string]any{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
	}
	data, _ := json.Marshal(chunk)
	return string(data)
}

// ErrorResponse builds an error response with an OpenAI-style body.
func ErrorResponse(status int, message string) Response {
	return Response{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{"message": message, "type": "invalid_request_error", "code": status},
		},
	}
}
