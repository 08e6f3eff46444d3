package helpers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = "<html><body>Hello, World!</body></html>"

func gzipped(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeBodyPlain(t *testing.T) {
	body, err := DecodeBody([]byte(page), "", "text/html; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
}

func TestDecodeBodyEncodings(t *testing.T) {
	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	_, _ = zw.Write([]byte(page))
	require.NoError(t, zw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(page))
	require.NoError(t, bw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstded := enc.EncodeAll([]byte(page), nil)
	require.NoError(t, enc.Close())

	cases := map[string][]byte{
		"gzip":    gzipped(t, []byte(page)),
		"deflate": deflated.Bytes(),
		"br":      br.Bytes(),
		"zstd":    zstded,
	}
	for coding, data := range cases {
		t.Run(coding, func(t *testing.T) {
			body, err := DecodeBody(data, coding, "text/html")
			require.NoError(t, err)
			assert.Equal(t, page, string(body))
		})
	}
}

func TestDecodeBodyRawDeflate(t *testing.T) {
	var raw bytes.Buffer
	fw, err := flate.NewWriter(&raw, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = fw.Write([]byte(page))
	require.NoError(t, fw.Close())

	body, err := DecodeBody(raw.Bytes(), "deflate", "text/html")
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
}

func TestDecodeBodyStackedEncodings(t *testing.T) {
	twice := gzipped(t, gzipped(t, []byte(page)))
	body, err := DecodeBody(twice, "gzip, gzip", "text/html")
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
}

func TestDecodeBodyNonUTF8(t *testing.T) {
	// "Café" in ISO-8859-1
	latin1 := []byte("<html><body>Caf\xe9</body></html>")
	body, err := DecodeBody(latin1, "", "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	assert.Contains(t, string(body), "Café")
}

func TestDecodeBodyErrors(t *testing.T) {
	_, err := DecodeBody([]byte("not gzip"), "gzip", "text/html")
	assert.Error(t, err)

	_, err = DecodeBody([]byte(page), "compress", "text/html")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content encoding")
}
