// internal/network/compression_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body><form action="formResponse"></form></body></html>`

func encodeBody(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompressResponse(t *testing.T) {
	for _, encoding := range []string{"gzip", "deflate", "br"} {
		t.Run(encoding, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{"Content-Encoding": {encoding}, "Content-Length": {"10"}},
				Body:   io.NopCloser(bytes.NewReader(encodeBody(t, encoding, []byte(samplePage)))),
			}
			require.NoError(t, DecompressResponse(resp))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())
			assert.Equal(t, samplePage, string(body))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.Empty(t, resp.Header.Get("Content-Length"))
			assert.EqualValues(t, -1, resp.ContentLength)
			assert.True(t, resp.Uncompressed)
		})
	}

	t.Run("stacked layers", func(t *testing.T) {
		inner := encodeBody(t, "gzip", []byte(samplePage))
		outer := encodeBody(t, "br", inner)
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {"gzip, br"}},
			Body:   io.NopCloser(bytes.NewReader(outer)),
		}
		require.NoError(t, DecompressResponse(resp))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, samplePage, string(body))
	})

	t.Run("identity passes through", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {"identity"}},
			Body:   io.NopCloser(strings.NewReader(samplePage)),
		}
		require.NoError(t, DecompressResponse(resp))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, samplePage, string(body))
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {"zstd"}},
			Body:   io.NopCloser(strings.NewReader("x")),
		}
		assert.ErrorContains(t, DecompressResponse(resp), "unsupported Content-Encoding")
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {"gzip"}},
			Body:   io.NopCloser(strings.NewReader("not gzip")),
		}
		assert.ErrorContains(t, DecompressResponse(resp), "gzip initialization error")
	})

	t.Run("nil response", func(t *testing.T) {
		assert.NoError(t, DecompressResponse(nil))
	})
}

func TestCompressionMiddleware_RoundTrip(t *testing.T) {
	var seenEncoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(encodeBody(t, "br", []byte(samplePage)))
	}))
	defer server.Close()

	transport := &http.Transport{DisableCompression: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: NewCompressionMiddleware(transport)}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, AcceptEncoding, seenEncoding)
	assert.Equal(t, samplePage, string(body))
	assert.Empty(t, req.Header.Get("Accept-Encoding"), "caller's request must not be mutated")
}
