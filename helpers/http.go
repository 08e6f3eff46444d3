package helpers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// DecodeBody undoes the Content-Encoding of a response body and converts it
// to UTF-8 using the Content-Type header and the body itself as hints.
func DecodeBody(body []byte, contentEncoding, contentType string) ([]byte, error) {
	raw, err := Decompress(body, contentEncoding)
	if err != nil {
		return nil, err
	}

	// Determine the encoding from Content-Type header and body content
	encoding, name, _ := charset.DetermineEncoding(raw, contentType)

	// If already UTF-8, return as is
	if strings.EqualFold(name, "utf-8") {
		return raw, nil
	}

	// Convert to UTF-8 if necessary
	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(raw))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress applies the decoders named by a Content-Encoding header, last
// applied first.
func Decompress(body []byte, contentEncoding string) ([]byte, error) {
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))

		var (
			reader io.Reader
			err    error
		)
		switch coding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			reader, err = gzip.NewReader(bytes.NewReader(body))
		case "deflate":
			reader = deflateReader(body)
		case "br":
			reader = brotli.NewReader(bytes.NewReader(body))
		case "zstd":
			var dec *zstd.Decoder
			dec, err = zstd.NewReader(bytes.NewReader(body))
			if err == nil {
				defer dec.Close()
				reader = dec
			}
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", coding)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s body: %w", coding, err)
		}

		body, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s body: %w", coding, err)
		}
	}
	return body, nil
}

// deflateReader reads zlib-wrapped data, falling back to raw DEFLATE for
// servers that omit the zlib header
func deflateReader(body []byte) io.Reader {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		return zr
	}
	return flate.NewReader(bytes.NewReader(body))
}
