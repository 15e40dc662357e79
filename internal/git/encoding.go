package git

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// normalizeEncoding lowercases a Content-Encoding value and strips any
// parameters after a semicolon.
func normalizeEncoding(value string) string {
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// decodeBody undoes the client's Content-Encoding. ADO rejects compressed
// git bodies in this integration, so the tunnel always forwards identity.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	switch normalizeEncoding(contentEncoding) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer reader.Close()
		return readAllPooled(reader)
	case "deflate":
		// git clients send zlib-wrapped deflate; fall back to raw deflate
		// for the noncompliant ones
		if reader, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer reader.Close()
			return readAllPooled(reader)
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAllPooled(reader)
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", contentEncoding)
	}
}

func readAllPooled(reader io.Reader) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
