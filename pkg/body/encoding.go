package body

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Decompress reverses a Content-Encoding header value. Codings are listed in
// the order they were applied, so they are undone right to left. Unknown
// codings return an error and leave the body untouched.
func Decompress(data []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding == "" || len(data) == 0 {
		return data, nil
	}

	codings := strings.Split(contentEncoding, ",")
	out := data
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		decoded, err := decompressOne(out, coding)
		if err != nil {
			return data, fmt.Errorf("content-encoding %s: %w", coding, err)
		}
		out = decoded
	}
	return out, nil
}

func decompressOne(data []byte, coding string) ([]byte, error) {
	switch coding {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case "deflate":
		// Most servers send zlib-wrapped deflate; fall back to raw streams.
		if r, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			defer func() { _ = r.Close() }()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
		r := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case "zstd":
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unsupported coding")
	}
}

// Compress applies a single content coding. It is the inverse of
// Decompress for one coding and is used when serving encoded responses.
func Compress(data []byte, coding string) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(strings.TrimSpace(coding)) {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "deflate":
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("content-encoding %s: unsupported coding", coding)
	}
	return buf.Bytes(), nil
}
