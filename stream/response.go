// Package stream turns an incrementally arriving encoded-audio response into
// an ordered sequence of chunks and feeds them into a playable buffer one
// append at a time.
package stream

import (
	"io"
	"mime"
	"net/http"
	"strings"
)

// ConversationHeader carries the backend's conversation id.
const ConversationHeader = "X-Conversation-Id"

// Response is the part of a backend reply the pipeline consumes.
type Response struct {
	StatusCode     int
	ContentType    string
	ConversationID string
	Body           io.ReadCloser
}

// FromHTTP adapts an *http.Response.
func FromHTTP(r *http.Response) *Response {
	return &Response{
		StatusCode:     r.StatusCode,
		ContentType:    r.Header.Get("Content-Type"),
		ConversationID: r.Header.Get(ConversationHeader),
		Body:           r.Body,
	}
}

// MediaType returns the lower-cased media type without parameters.
func (r *Response) MediaType() string {
	return MediaType(r.ContentType)
}

// Validate checks the success and content-type preconditions. It never reads
// from the body.
func (r *Response) Validate() error {
	if r == nil {
		return Errorf(KindInvalidResponse, "nil response")
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return Errorf(KindInvalidResponse, "status %d", r.StatusCode)
	}
	if mt := r.MediaType(); !strings.HasPrefix(mt, "audio/") {
		return Errorf(KindInvalidResponse, "content type %q is not audio", r.ContentType)
	}
	if r.Body == nil {
		return Errorf(KindInvalidResponse, "response has no body")
	}
	return nil
}

// Close closes the body if there is one.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// MediaType normalizes a Content-Type header value.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
