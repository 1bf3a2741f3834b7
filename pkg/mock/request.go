package mock

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/getmockd/interceptd/pkg/body"
)

// Request is a captured HTTP request. The body is buffered once so that
// every handler and every restriction sees the same bytes; the decoded
// form is computed lazily and cached.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// PathParams holds values captured by the matching handler's path
	// pattern. It is nil until a handler claims the request.
	PathParams map[string]string

	raw []byte

	// encodingErr records a Content-Encoding that could not be undone.
	encodingErr error

	cache *bodyCache
}

// bodyCache holds the decoded body. Copies of a request share it.
type bodyCache struct {
	once   sync.Once
	value  body.Value
	err    error
	warned atomic.Bool
}

// NewRequest builds a Request from its parts. raw must already be
// decompressed.
func NewRequest(method, rawURL string, header http.Header, raw []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request URL: %w", err)
	}
	if header == nil {
		header = make(http.Header)
	}
	return &Request{Method: method, URL: u, Header: header, raw: raw, cache: new(bodyCache)}, nil
}

// FromHTTP captures r. The body is read fully, r.Body is replaced with a
// fresh reader over the original bytes, and any Content-Encoding is undone
// for matching. A body that fails to decompress is kept as sent and the
// failure is reported by Body.
func FromHTTP(r *http.Request) (*Request, error) {
	var raw []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		raw, err = io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}

	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}

	req := &Request{
		Method: r.Method,
		URL:    &u,
		Header: r.Header.Clone(),
		raw:    raw,
		cache:  new(bodyCache),
	}

	if enc := r.Header.Get("Content-Encoding"); enc != "" && len(raw) > 0 {
		decoded, err := body.Decompress(raw, enc)
		if err != nil {
			req.encodingErr = err
		} else {
			req.raw = decoded
		}
	}
	return req, nil
}

// SearchParams returns the parsed query string.
func (r *Request) SearchParams() url.Values {
	if r.URL == nil {
		return url.Values{}
	}
	return r.URL.Query()
}

// Path returns the URL path.
func (r *Request) Path() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Path
}

// RawBody returns the buffered, decompressed body bytes.
func (r *Request) RawBody() []byte {
	return r.raw
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Body returns the decoded body. A non-nil error describes why the body
// could not be decoded under its declared type; the returned value is
// still usable and is a blob in that case.
func (r *Request) Body() (body.Value, error) {
	c := r.cache
	if c == nil {
		return r.decode()
	}
	c.once.Do(func() {
		c.value, c.err = r.decode()
	})
	return c.value, c.err
}

func (r *Request) decode() (body.Value, error) {
	v, err := body.Decode(r.raw, r.ContentType())
	if r.encodingErr != nil {
		err = r.encodingErr
	}
	return v, err
}

// BodyWarning returns the body decode error on its first call and nil on
// later ones, copies included, so a bad body is reported once.
func (r *Request) BodyWarning() error {
	_, err := r.Body()
	if err == nil || r.cache == nil {
		return err
	}
	if r.cache.warned.Swap(true) {
		return nil
	}
	return err
}

// Clone returns a deep copy. The copy shares the decoded body, so its
// Content-Type must not be changed.
func (r *Request) Clone() *Request {
	c := &Request{
		Method:      r.Method,
		Header:      r.Header.Clone(),
		raw:         bytes.Clone(r.raw),
		encodingErr: r.encodingErr,
		cache:       r.cache,
	}
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	if r.PathParams != nil {
		c.PathParams = maps.Clone(r.PathParams)
	}
	return c
}

// WithPathParams returns a copy carrying params.
func (r *Request) WithPathParams(params map[string]string) *Request {
	c := r.Clone()
	c.PathParams = params
	return c
}

// HTTPRequest rebuilds a net/http request for forwarding.
func (r *Request) HTTPRequest() (*http.Request, error) {
	req, err := http.NewRequest(r.Method, r.URL.String(), bytes.NewReader(r.raw))
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Header.Del("Content-Encoding")
	req.ContentLength = int64(len(r.raw))
	return req, nil
}

func (r *Request) String() string {
	if r.URL == nil {
		return r.Method
	}
	return r.Method + " " + r.URL.String()
}
