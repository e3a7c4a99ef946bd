package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func encodeChunk(data []byte, signature string) string {
	header := fmt.Sprintf("%x", len(data))
	if signature != "" {
		header += ";chunk-signature=" + signature
	}
	if len(data) == 0 {
		return header + "\r\n\r\n"
	}
	return header + "\r\n" + string(data) + "\r\n"
}

func TestChunkedReaderUnsigned(t *testing.T) {
	var stream strings.Builder
	stream.WriteString(encodeChunk([]byte("hello "), ""))
	stream.WriteString(encodeChunk([]byte("world"), ""))
	stream.WriteString(encodeChunk(nil, ""))

	r := NewChunkedReader(strings.NewReader(stream.String()))
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("decoded = %q, want %q", data, "hello world")
	}
}

func TestChunkedReaderTrailingHeaders(t *testing.T) {
	stream := encodeChunk([]byte("payload"), "") +
		"0\r\n" +
		"x-amz-checksum-crc32:AAAAAA==\r\n" +
		"\r\n"

	r := NewChunkedReader(strings.NewReader(stream))
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("decoded = %q, want %q", data, "payload")
	}
}

func TestChunkedReaderMalformed(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr error
	}{
		{"bad size", "zz\r\ndata\r\n", ErrInvalidChunkFormat},
		{"oversized", "10000000\r\n", ErrChunkTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChunkedReader(strings.NewReader(tt.stream))
			if _, err := io.ReadAll(r); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadAll() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// signChunk computes the streaming SigV4 chunk signature.
func signChunk(signingKey []byte, timestamp, scope, prevSig string, data []byte) string {
	chunkHash := sha256.Sum256(data)
	emptyHash := sha256.Sum256(nil)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256-PAYLOAD",
		timestamp,
		scope,
		prevSig,
		hex.EncodeToString(emptyHash[:]),
		hex.EncodeToString(chunkHash[:]),
	}, "\n")
	return hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
}

func TestChunkedReaderSignedStream(t *testing.T) {
	const (
		timestamp = "20260824T120000Z"
		scope     = "20260824/us-east-1/s3/aws4_request"
		seed      = "seedsignature"
	)
	signingKey := CalculateSigningKey(testSecretKey, "20260824")

	sig1 := signChunk(signingKey, timestamp, scope, seed, []byte("chunk one "))
	sig2 := signChunk(signingKey, timestamp, scope, sig1, []byte("chunk two"))
	sigFinal := signChunk(signingKey, timestamp, scope, sig2, nil)

	var stream strings.Builder
	stream.WriteString(encodeChunk([]byte("chunk one "), sig1))
	stream.WriteString(encodeChunk([]byte("chunk two"), sig2))
	stream.WriteString(encodeChunk(nil, sigFinal))

	r := NewChunkedReader(strings.NewReader(stream.String()),
		WithSignatureValidation(signingKey, scope, timestamp, seed))
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "chunk one chunk two" {
		t.Errorf("decoded = %q, want %q", data, "chunk one chunk two")
	}
}

func TestChunkedReaderBadChunkSignature(t *testing.T) {
	const (
		timestamp = "20260824T120000Z"
		scope     = "20260824/us-east-1/s3/aws4_request"
	)
	signingKey := CalculateSigningKey(testSecretKey, "20260824")

	stream := encodeChunk([]byte("data"), strings.Repeat("0", 64)) +
		encodeChunk(nil, strings.Repeat("0", 64))

	r := NewChunkedReader(strings.NewReader(stream),
		WithSignatureValidation(signingKey, scope, timestamp, "seed"))
	if _, err := io.ReadAll(r); !errors.Is(err, ErrInvalidChunkSignature) {
		t.Fatalf("ReadAll() error = %v, want ErrInvalidChunkSignature", err)
	}
}

func TestIsChunkedUpload(t *testing.T) {
	tests := []struct {
		name            string
		contentEncoding string
		contentSha256   string
		want            bool
	}{
		{"plain", "", "", false},
		{"aws-chunked", "aws-chunked", "", true},
		{"gzip then chunked", "gzip, aws-chunked", "", true},
		{"signed streaming", "", "STREAMING-AWS4-HMAC-SHA256-PAYLOAD", true},
		{"unsigned trailer", "", "STREAMING-UNSIGNED-PAYLOAD-TRAILER", true},
		{"plain hash", "", "UNSIGNED-PAYLOAD", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/mybucket/key", nil)
			if tt.contentEncoding != "" {
				req.Header.Set("Content-Encoding", tt.contentEncoding)
			}
			if tt.contentSha256 != "" {
				req.Header.Set("X-Amz-Content-Sha256", tt.contentSha256)
			}
			if got := IsChunkedUpload(req); got != tt.want {
				t.Errorf("IsChunkedUpload() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapChunkedRequestUnsignedTrailer(t *testing.T) {
	a := newTestAuthenticator()

	body := encodeChunk([]byte("decoded body"), "") + encodeChunk(nil, "")
	req := httptest.NewRequest("PUT", "/mybucket/key", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Amz-Content-Sha256", "STREAMING-UNSIGNED-PAYLOAD-TRAILER")
	req.Header.Set("X-Amz-Decoded-Content-Length", "12")

	wrapped, err := a.WrapChunkedRequest(req, Authorization{AccessKeyID: testAccessKey})
	if err != nil {
		t.Fatalf("WrapChunkedRequest() error = %v", err)
	}
	if wrapped.ContentLength != 12 {
		t.Errorf("ContentLength = %d, want 12", wrapped.ContentLength)
	}
	data, err := io.ReadAll(wrapped.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "decoded body" {
		t.Errorf("body = %q, want %q", data, "decoded body")
	}
}
