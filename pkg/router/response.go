package router

import (
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
)

// Response is a fully formed response. Returned from a handler or carried
// by ShortCircuit or Halt, it is written verbatim: the context's pending
// status, headers and cookies are not applied to it.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with the given status and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// TextResponse creates a text/plain response.
func TextResponse(status int, text string) *Response {
	resp := NewResponse(status, []byte(text))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

// JSONResponse creates an application/json response. Values that cannot
// be encoded produce a 500 response.
func JSONResponse(status int, v any) *Response {
	body, err := codec.MarshalJSON(v)
	if err != nil {
		return TextResponse(http.StatusInternalServerError, "Internal Server Error")
	}
	resp := NewResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

// write copies the response to w.
func (resp *Response) write(w http.ResponseWriter) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// File is a streamed response body. When Reader implements io.Closer it is
// closed after the response is written.
type File struct {
	Reader      io.Reader
	Name        string
	ContentType string // defaults to application/octet-stream
	Size        int64  // negative when unknown
}

// NewFile wraps r as a file response of unknown size.
func NewFile(r io.Reader, contentType string) *File {
	return &File{Reader: r, ContentType: contentType, Size: -1}
}

// OpenFile opens the named file for use as a response body.
func OpenFile(name, contentType string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return statFile(f, contentType)
}

// OpenFileIn opens name inside root. Names that would leave root, through
// ".." or symlinks, fail, so request paths can be used directly.
func OpenFileIn(root *os.Root, name, contentType string) (*File, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	return statFile(f, contentType)
}

func statFile(f *os.File, contentType string) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: f.Name(), Err: fs.ErrNotExist}
	}
	return &File{Reader: f, Name: info.Name(), ContentType: contentType, Size: info.Size()}, nil
}

// materialize writes value using the pending response state. Exactly one
// of the cases applies, checked in order: *Response, *File, string, and
// anything else as JSON.
func materialize(w http.ResponseWriter, value any, set *ResponseState, defaultStatus int) error {
	value = payload(value)
	if resp, ok := value.(*Response); ok {
		resp.write(w)
		return nil
	}

	var body []byte
	switch value.(type) {
	case *File, string:
	default:
		// Encode before touching headers so a failure leaves w clean.
		var err error
		if body, err = codec.MarshalJSON(value); err != nil {
			return err
		}
	}

	h := w.Header()
	for k, vs := range set.Headers {
		h[k] = append([]string(nil), vs...)
	}
	writeCookies(h, set.Cookies)

	status := set.Status
	if status == 0 {
		status = defaultStatus
	}

	switch v := value.(type) {
	case *File:
		if closer, ok := v.Reader.(io.Closer); ok {
			defer closer.Close()
		}
		if h.Get("Content-Type") == "" {
			ct := v.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
		}
		if v.Size >= 0 {
			h.Set("Content-Length", strconv.FormatInt(v.Size, 10))
		}
		w.WriteHeader(status)
		if v.Reader != nil {
			if _, err := io.Copy(w, v.Reader); err != nil {
				return err
			}
		}
		return nil

	case string:
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(status)
		_, err := io.WriteString(w, v)
		return err

	default:
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, err := w.Write(body)
		return err
	}
}

// payload turns a nil *Response or *File into a plain nil, which is
// encoded as JSON null.
func payload(v any) any {
	switch p := v.(type) {
	case *Response:
		if p == nil {
			return nil
		}
	case *File:
		if p == nil {
			return nil
		}
	}
	return v
}

// writeError writes one of the dispatcher's own JSON error bodies.
func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
