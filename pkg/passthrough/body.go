package passthrough

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/passthrough/pkg/proxy/types"
)

// Body is an inbound request body, read once and parsed.
//
// Exactly one of JSON, Form and Raw is meaningful: JSON for object bodies,
// Form for multipart uploads, Raw for anything else.
type Body struct {
	JSON        map[string]any
	Form        *MultipartForm
	Raw         []byte
	ContentType string
}

// MultipartForm is a parsed multipart/form-data body.
type MultipartForm struct {
	Files  []FilePart
	Fields []FormField
}

// FilePart is one uploaded file.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// FormField is one scalar form value. Repeated names appear repeatedly.
type FormField struct {
	Name  string
	Value string
}

// Telemetry returns the body as reported to hooks: the object for JSON,
// a field summary for multipart, the text for raw bodies.
func (b *Body) Telemetry() any {
	switch {
	case b == nil:
		return nil
	case b.JSON != nil:
		return b.JSON
	case b.Form != nil:
		out := make(map[string]any, len(b.Form.Fields)+len(b.Form.Files))
		for _, f := range b.Form.Fields {
			out[f.Name] = f.Value
		}
		for _, f := range b.Form.Files {
			out[f.Field] = fmt.Sprintf("<file %s, %d bytes>", f.Filename, len(f.Content))
		}
		return out
	default:
		return string(b.Raw)
	}
}

// ReadBody reads and parses the body of r, capped at limit bytes.
//
// An empty body parses as an empty object. Object bodies are parsed as
// strict JSON first and then with the relaxed literal fallback. Bodies
// that are neither are kept raw with the client's content type.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) (*Body, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return &Body{JSON: map[string]any{}}, nil
	}
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	contentType := r.Header.Get("Content-Type")
	if mediaType, params, err := mime.ParseMediaType(contentType); err == nil && mediaType == "multipart/form-data" {
		form, err := readMultipart(r.Body, params["boundary"])
		if err != nil {
			return nil, err
		}
		return &Body{Form: form}, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return ParseBody(raw, contentType), nil
}

// ParseBody parses a non-multipart body.
func ParseBody(raw []byte, contentType string) *Body {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Body{JSON: map[string]any{}}
	}
	if obj, ok := parseStrictJSON(trimmed); ok {
		return &Body{JSON: obj}
	}
	if obj, ok := parseRelaxed(trimmed); ok {
		return &Body{JSON: obj}
	}
	return &Body{Raw: raw, ContentType: contentType}
}

func parseStrictJSON(raw []byte) (map[string]any, bool) {
	if raw[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// parseRelaxed accepts object literals a strict JSON parser rejects:
// single-quoted strings, trailing commas and True/False/None. Only a
// flow-style mapping at the root is accepted.
func parseRelaxed(raw []byte) (map[string]any, bool) {
	if raw[0] != '{' {
		return nil, false
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, false
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode || root.Style&yaml.FlowStyle == 0 {
		return nil, false
	}
	v, err := literalValue(root)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// errAnchor rejects YAML anchors and aliases; literals never contain them.
var errAnchor = errors.New("anchors and aliases are not literals")

func literalValue(n *yaml.Node) (any, error) {
	if n.Anchor != "" {
		return nil, errAnchor
	}
	switch n.Kind {
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := literalValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := literalValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return nil, errAnchor
	case yaml.ScalarNode:
		if n.Style == 0 && n.Value == "None" {
			return nil, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported literal node kind %d", n.Kind)
	}
}

func readMultipart(body io.Reader, boundary string) (*MultipartForm, error) {
	if boundary == "" {
		return nil, badMultipart(errors.New("missing boundary"))
	}
	mr := multipart.NewReader(body, boundary)
	form := &MultipartForm{}
	for {
		part, err := mr.NextPart()
		// A truncated body yields a wrapped io.EOF; only the bare one marks
		// the closing boundary.
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, badMultipart(err)
		}
		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, badMultipart(err)
		}

		name := part.FormName()
		if filename := part.FileName(); filename != "" {
			ct := part.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			form.Files = append(form.Files, FilePart{
				Field:       name,
				Filename:    filename,
				ContentType: ct,
				Content:     content,
			})
			continue
		}
		form.Fields = append(form.Fields, FormField{Name: name, Value: string(content)})
	}
}

func badMultipart(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	return &ProxyError{
		Message: "malformed multipart body: " + err.Error(),
		Type:    types.ErrorTypeInvalidRequest,
		Param:   "body",
		Code:    http.StatusBadRequest,
	}
}

// encodeMultipart writes form with a fresh boundary and returns the body
// and its content type.
func encodeMultipart(form *MultipartForm) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range form.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}
	for _, f := range form.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Field), escapeQuotes(f.Filename)))
		h.Set("Content-Type", f.ContentType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
