package streaming

import (
	"bytes"

	"github.com/tidwall/gjson"

	"mercator-hq/passthrough/pkg/telemetry/hooks"
)

// Summarize extracts the model and token usage from a response body. The
// body may be a server-sent event stream, a JSON array of events (Vertex AI
// streams without alt=sse) or a single JSON object. Later events override
// earlier ones field by field, so cumulative usage reports settle on their
// final value.
func Summarize(flavor Flavor, body []byte) Summary {
	s := Summary{Flavor: flavor, Captured: body}
	if len(body) == 0 {
		return s
	}

	extract := extractorFor(flavor)
	events := sseData(body)
	if len(events) == 0 {
		doc := gjson.ParseBytes(body)
		if doc.IsArray() {
			doc.ForEach(func(_, ev gjson.Result) bool {
				extract(ev, &s)
				return true
			})
		} else if doc.IsObject() {
			extract(doc, &s)
		}
	} else {
		for _, data := range events {
			if !gjson.ValidBytes(data) {
				continue
			}
			extract(gjson.ParseBytes(data), &s)
		}
	}

	if s.Usage.TotalTokens == 0 {
		s.Usage.TotalTokens = s.Usage.PromptTokens + s.Usage.CompletionTokens
	}
	return s
}

// sseData returns the payload of every data: line, skipping the [DONE]
// terminator.
func sseData(body []byte) [][]byte {
	var out [][]byte
	for line := range bytes.Lines(body) {
		line = bytes.TrimRight(line, "\r\n")
		rest, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		rest = bytes.TrimSpace(rest)
		if len(rest) == 0 || bytes.Equal(rest, []byte("[DONE]")) {
			continue
		}
		out = append(out, rest)
	}
	return out
}

type extractor func(ev gjson.Result, s *Summary)

func extractorFor(f Flavor) extractor {
	switch f {
	case FlavorAnthropic:
		return extractAnthropic
	case FlavorVertexAI:
		return extractVertex
	default:
		return extractGeneric
	}
}

func setString(dst *string, r gjson.Result) {
	if r.Exists() && r.String() != "" {
		*dst = r.String()
	}
}

func setInt(dst *int64, r gjson.Result) {
	if r.Exists() && r.Int() > 0 {
		*dst = r.Int()
	}
}

// extractGeneric understands OpenAI-style bodies and the input/output token
// naming used by the responses API.
func extractGeneric(ev gjson.Result, s *Summary) {
	setString(&s.Model, ev.Get("model"))
	setString(&s.Model, ev.Get("response.model"))
	u := &s.Usage
	for _, prefix := range []string{"usage.", "response.usage."} {
		setInt(&u.PromptTokens, ev.Get(prefix+"prompt_tokens"))
		setInt(&u.PromptTokens, ev.Get(prefix+"input_tokens"))
		setInt(&u.CompletionTokens, ev.Get(prefix+"completion_tokens"))
		setInt(&u.CompletionTokens, ev.Get(prefix+"output_tokens"))
		setInt(&u.TotalTokens, ev.Get(prefix+"total_tokens"))
	}
}

// extractAnthropic handles message_start (model, input tokens) and
// message_delta (output tokens) events as well as whole message bodies.
func extractAnthropic(ev gjson.Result, s *Summary) {
	setString(&s.Model, ev.Get("model"))
	setString(&s.Model, ev.Get("message.model"))
	u := &s.Usage
	setInt(&u.PromptTokens, ev.Get("usage.input_tokens"))
	setInt(&u.PromptTokens, ev.Get("message.usage.input_tokens"))
	setInt(&u.CompletionTokens, ev.Get("usage.output_tokens"))
	setInt(&u.CompletionTokens, ev.Get("message.usage.output_tokens"))
}

// extractVertex handles Gemini generateContent responses and chunks.
func extractVertex(ev gjson.Result, s *Summary) {
	setString(&s.Model, ev.Get("modelVersion"))
	setString(&s.Model, ev.Get("model"))
	u := &s.Usage
	setInt(&u.PromptTokens, ev.Get("usageMetadata.promptTokenCount"))
	setInt(&u.CompletionTokens, ev.Get("usageMetadata.candidatesTokenCount"))
	setInt(&u.TotalTokens, ev.Get("usageMetadata.totalTokenCount"))
	// rawPredict on Anthropic models returns Anthropic framing.
	if !ev.Get("usageMetadata").Exists() {
		extractAnthropic(ev, s)
	}
}

// Usage returns only the model and token counts of body.
func Usage(flavor Flavor, body []byte) (string, hooks.Usage) {
	s := Summarize(flavor, body)
	return s.Model, s.Usage
}
