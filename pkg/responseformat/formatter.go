package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Envelope wraps every API response body
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Msg    string `json:"msg"`
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WriteResponse writes data in the format requested by the format query parameter.
// JSON is the default format. MessagePack is used when format=msgpack is specified.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, statusCode int, data any) error {
	if req.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", "application/x-msgpack")
		w.WriteHeader(statusCode)
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json") // Use json tags for MessagePack
		return encoder.Encode(data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// Success writes a 200 envelope carrying data
func (f *Formatter) Success(w http.ResponseWriter, req *http.Request, data any, msg string) error {
	return f.WriteResponse(w, req, http.StatusOK, Envelope{Status: StatusSuccess, Data: data, Msg: msg})
}

// Failure writes an error envelope with a null data field
func (f *Formatter) Failure(w http.ResponseWriter, req *http.Request, statusCode int, msg string) error {
	return f.WriteResponse(w, req, statusCode, Envelope{Status: StatusFailed, Msg: msg})
}
