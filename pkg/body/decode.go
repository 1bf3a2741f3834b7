package body

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
)

// maxMultipartMemory bounds the in-memory size of decoded multipart parts.
const maxMultipartMemory = 32 << 20

// DecodeError reports a body that failed to decode under its declared
// content type. The accompanying Value is a blob of the raw bytes.
type DecodeError struct {
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode body as %s: %v", e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode normalizes raw according to contentType. On a decode failure it
// returns a blob Value together with a *DecodeError; the Value is always
// usable for matching.
func Decode(raw []byte, contentType string) (Value, error) {
	if len(raw) == 0 {
		return Value{Kind: KindNone, Raw: raw}, nil
	}

	mediaType, params := parseContentType(contentType)

	switch {
	case mediaType == "":
		return sniff(raw), nil

	case isJSONMediaType(mediaType):
		doc, err := parseJSON(raw)
		if err != nil {
			return blob(raw, mediaType), &DecodeError{ContentType: mediaType, Err: err}
		}
		return Value{Kind: KindJSON, JSON: doc, Raw: raw}, nil

	case mediaType == "multipart/form-data":
		form, err := parseMultipart(raw, params["boundary"])
		if err != nil {
			return blob(raw, mediaType), &DecodeError{ContentType: mediaType, Err: err}
		}
		return Value{Kind: KindFormData, Form: form, Raw: raw}, nil

	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return blob(raw, mediaType), &DecodeError{ContentType: mediaType, Err: err}
		}
		return Value{Kind: KindURLEncoded, Params: values, Raw: raw}, nil

	case strings.HasPrefix(mediaType, "text/"):
		if !utf8.Valid(raw) {
			return blob(raw, mediaType), &DecodeError{ContentType: mediaType, Err: errors.New("invalid UTF-8")}
		}
		return Value{Kind: KindText, Text: string(raw), Raw: raw}, nil

	case isBinaryMediaType(mediaType):
		return blob(raw, mediaType), nil

	default:
		// Unrecognized types still decode as JSON when they parse.
		if doc, err := parseJSON(raw); err == nil {
			return Value{Kind: KindJSON, JSON: doc, Raw: raw}, nil
		}
		return blob(raw, mediaType), nil
	}
}

// sniff classifies an untyped body: JSON if it parses, text if it is UTF-8,
// otherwise an octet-stream blob.
func sniff(raw []byte) Value {
	if doc, err := parseJSON(raw); err == nil {
		return Value{Kind: KindJSON, JSON: doc, Raw: raw}
	}
	if utf8.Valid(raw) {
		return Value{Kind: KindText, Text: string(raw), Raw: raw}
	}
	return blob(raw, DefaultBlobType)
}

func blob(raw []byte, mediaType string) Value {
	if mediaType == "" {
		mediaType = DefaultBlobType
	}
	return Value{Kind: KindBlob, Data: raw, MediaType: mediaType, Raw: raw}
}

func parseContentType(contentType string) (string, map[string]string) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Keep whatever precedes the first parameter.
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
		return mediaType, nil
	}
	return mediaType, params
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// isBinaryMediaType reports media types never decoded as JSON.
func isBinaryMediaType(mediaType string) bool {
	switch mediaType {
	case DefaultBlobType, "application/pdf", "application/zip", "application/gzip":
		return true
	}
	family, _, _ := strings.Cut(mediaType, "/")
	switch family {
	case "image", "audio", "video", "font":
		return true
	}
	return false
}

func parseJSON(data []byte) (any, error) {
	return oj.Parse(data)
}

func parseMultipart(raw []byte, boundary string) (map[string][]Part, error) {
	if boundary == "" {
		return nil, errors.New("missing multipart boundary")
	}

	reader := multipart.NewReader(bytes.NewReader(raw), boundary)
	form, err := reader.ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, err
	}
	defer func() { _ = form.RemoveAll() }()

	fields := make(map[string][]Part, len(form.Value)+len(form.File))
	for name, values := range form.Value {
		for _, v := range values {
			fields[name] = append(fields[name], Field(v))
		}
	}
	for name, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open part %q: %w", name, err)
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("read part %q: %w", name, err)
			}
			fields[name] = append(fields[name], File(fh.Filename, fh.Header.Get("Content-Type"), data))
		}
	}
	return fields, nil
}
