package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/x-msgpack"
)

// Format is an encoding the service speaks.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat accepts "json", "msgpack" or "" (JSON).
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct {
	// MaxBodyBytes limits decoded request bodies. Zero means no limit.
	MaxBodyBytes int64
}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{MaxBodyBytes: 8 << 20}
}

// WriteResponse writes the response in the appropriate format based on the query parameter
// JSON is the default format. MessagePack is used when format=msgpack is specified
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if req.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", ContentTypeMsgPack)
		w.WriteHeader(status)
		return Encode(w, MsgPack, data)
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return Encode(w, JSON, data)
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteError writes an ErrorBody with the given status.
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, kind string, err error) error {
	return f.WriteResponse(w, req, status, ErrorBody{Error: err.Error(), Kind: kind})
}

// DecodeRequest reads the request body into v, as MessagePack when the
// Content-Type says so and as JSON otherwise.
func (f *Formatter) DecodeRequest(req *http.Request, v any) error {
	var body io.Reader = req.Body
	if f.MaxBodyBytes > 0 {
		body = io.LimitReader(req.Body, f.MaxBodyBytes)
	}

	if isMsgPack(req.Header.Get("Content-Type")) {
		return Decode(body, MsgPack, v)
	}
	return Decode(body, JSON, v)
}

func isMsgPack(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == ContentTypeMsgPack || mt == "application/msgpack"
}

// Encode writes data to w in the given format.
func Encode(w io.Writer, format Format, data any) error {
	if format == MsgPack {
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json") // Use json tags for MessagePack
		return encoder.Encode(data)
	}
	return json.NewEncoder(w).Encode(data)
}

// Decode reads one value of the given format from r.
func Decode(r io.Reader, format Format, v any) error {
	if format == MsgPack {
		decoder := msgpack.NewDecoder(r)
		decoder.SetCustomStructTag("json")
		return decoder.Decode(v)
	}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
