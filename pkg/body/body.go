package body

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Kind identifies the decoded representation of a body.
type Kind int

// Body kinds.
const (
	KindNone Kind = iota
	KindJSON
	KindFormData
	KindURLEncoded
	KindBlob
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindJSON:
		return "json"
	case KindFormData:
		return "formData"
	case KindURLEncoded:
		return "urlEncoded"
	case KindBlob:
		return "blob"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none", "":
		return KindNone, nil
	case "json":
		return KindJSON, nil
	case "formData":
		return KindFormData, nil
	case "urlEncoded":
		return KindURLEncoded, nil
	case "blob":
		return KindBlob, nil
	case "text":
		return KindText, nil
	default:
		return KindNone, fmt.Errorf("unknown body kind %q", s)
	}
}

// DefaultBlobType is the media type assumed for blobs declared without one.
const DefaultBlobType = "application/octet-stream"

// Part is one value of a multipart/form-data field.
// String fields set Value; file parts set File, Filename, ContentType and Data.
type Part struct {
	Value       string
	File        bool
	Filename    string
	ContentType string
	Data        []byte
}

// Field returns a string form-data part.
func Field(value string) Part {
	return Part{Value: value}
}

// File returns a binary form-data part.
func File(filename, contentType string, data []byte) Part {
	if contentType == "" {
		contentType = DefaultBlobType
	}
	return Part{File: true, Filename: filename, ContentType: contentType, Data: data}
}

// Value is a normalized body.
type Value struct {
	Kind Kind

	// JSON holds the decoded JSON document (KindJSON). Numbers are int64 or
	// float64, objects map[string]any, arrays []any.
	JSON any

	// Form holds multipart fields (KindFormData).
	Form map[string][]Part

	// Params holds URL-encoded fields (KindURLEncoded).
	Params url.Values

	// Data and MediaType describe a blob (KindBlob).
	Data      []byte
	MediaType string

	// Text holds a plain text body (KindText).
	Text string

	// Raw is the decompressed body a received Value was decoded from.
	// It is nil for expectations built with the constructors.
	Raw []byte

	err error
}

// Err reports a construction error, for example a JSON expectation that
// could not be marshaled.
func (v Value) Err() error {
	return v.err
}

// IsZero reports whether v is the empty body.
func (v Value) IsZero() bool {
	return v.Kind == KindNone
}

// None returns the empty body.
func None() Value {
	return Value{Kind: KindNone}
}

// JSON returns a JSON expectation built from any value encoding/json can
// marshal. The value is normalized through a JSON round trip, so structs,
// maps and raw messages with the same document compare equal.
func JSON(v any) Value {
	var data []byte
	switch raw := v.(type) {
	case json.RawMessage:
		data = raw
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return Value{Kind: KindJSON, err: fmt.Errorf("marshal JSON body: %w", err)}
		}
	}
	doc, err := parseJSON(data)
	if err != nil {
		return Value{Kind: KindJSON, err: fmt.Errorf("parse JSON body: %w", err)}
	}
	return Value{Kind: KindJSON, JSON: doc}
}

// Text returns a plain text expectation.
func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// Blob returns a binary expectation. An empty media type defaults to
// application/octet-stream.
func Blob(data []byte, mediaType string) Value {
	if mediaType == "" {
		mediaType = DefaultBlobType
	}
	return Value{Kind: KindBlob, Data: data, MediaType: mediaType}
}

// Params returns a URL-encoded expectation.
func Params(values url.Values) Value {
	return Value{Kind: KindURLEncoded, Params: values}
}

// ParamsMap returns a URL-encoded expectation with one value per field.
func ParamsMap(m map[string]string) Value {
	values := make(url.Values, len(m))
	for k, v := range m {
		values.Set(k, v)
	}
	return Params(values)
}

// Form returns a multipart/form-data expectation.
func Form(fields map[string][]Part) Value {
	return Value{Kind: KindFormData, Form: fields}
}
