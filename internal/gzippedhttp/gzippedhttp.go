// Package gzippedhttp decompresses gzip-encoded request bodies. Responses are
// compressed by the router's compression middleware.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
)

// MessageBadEncoding is returned when a body claims gzip but is not.
const MessageBadEncoding = "Request body is not valid gzip"

// CompressedReader wraps an io.ReadCloser and decompresses its input using gzip.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

// NewCompressedReader returns a new CompressedReader that reads gzip-compressed data
// from the provided io.ReadCloser.
func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zippedRequestBody, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{
		r:  requestBody,
		zr: zippedRequestBody,
	}, nil
}

// Read reads decompressed data from the underlying gzip stream.
func (c *CompressedReader) Read(p []byte) (n int, err error) {
	return c.zr.Read(p)
}

// Close closes the gzip reader, then the underlying body.
func (c *CompressedReader) Close() error {
	zErr := c.zr.Close()
	if err := c.r.Close(); err != nil {
		return err
	}
	return zErr
}

// DecompressRequest replaces a gzip request body with a decompressing reader
// and drops the Content-Encoding and Content-Length headers that no longer
// describe it.
func DecompressRequest(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(strings.ToLower(request.Header.Get("Content-Encoding")), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		body, err := NewCompressedReader(request.Body)
		if err != nil {
			logger.Log.Debugln("Error calling the `NewCompressedReader()`: ", err)
			models.WriteError(response, http.StatusBadRequest, MessageBadEncoding)
			return
		}
		defer func() {
			if err := body.Close(); err != nil {
				logger.Log.Debugln("Error calling the `body.Close()`: ", err)
			}
		}()

		request.Body = body
		request.Header.Del("Content-Encoding")
		request.Header.Del("Content-Length")
		request.ContentLength = -1

		h.ServeHTTP(response, request)
	})
}
