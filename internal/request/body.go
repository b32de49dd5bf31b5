package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// BodyKind tells request bodies apart
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyForm
	BodyMultipart
	BodyRaw
)

func (k BodyKind) String() string {
	switch k {
	case BodyForm:
		return "form"
	case BodyMultipart:
		return "multipart"
	case BodyRaw:
		return "raw"
	default:
		return "none"
	}
}

// Body is a replayable request body. Open returns a fresh reader on every
// call so a descriptor can be dispatched more than once (redirects, retries
// done by the caller).
type Body interface {
	Kind() BodyKind
	ContentType() string
	// Open returns the body and its length, or -1 if unknown.
	Open() (io.ReadCloser, int64, error)
}

const formMediaType = "application/x-www-form-urlencoded"

type formBody struct {
	encoded []byte
}

// Form returns a form-encoded body. Keys are emitted in sorted order.
func Form(values url.Values) Body {
	return &formBody{encoded: []byte(values.Encode())}
}

// Empty is the default body for methods that require one.
func Empty() Body {
	return &formBody{}
}

func (b *formBody) Kind() BodyKind      { return BodyForm }
func (b *formBody) ContentType() string { return formMediaType }

func (b *formBody) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(b.encoded)), int64(len(b.encoded)), nil
}

type rawBody struct {
	mediaType string
	data      []byte
}

// Raw returns a body with an explicit media type.
func Raw(mediaType string, data []byte) Body {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &rawBody{mediaType: mediaType, data: cp}
}

// JSON encodes v as an application/json raw body.
func JSON(v any) (Body, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding JSON body: %w", err)
	}
	return &rawBody{mediaType: "application/json; charset=utf-8", data: data}, nil
}

func (b *rawBody) Kind() BodyKind      { return BodyRaw }
func (b *rawBody) ContentType() string { return b.mediaType }

func (b *rawBody) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(b.data)), int64(len(b.data)), nil
}
