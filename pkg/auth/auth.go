// Package auth implements AWS Signature V4 authentication for S3-compatible servers.
//
// The package provides credential management, signature validation, and
// HTTP middleware integration.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	authPrefix = "AWS4-HMAC-SHA256 "

	signingRegion  = "us-east-1"
	signingService = "s3"

	// Requests dated further than this from server time are rejected.
	maxClockSkew = 15 * time.Minute

	amzDateFormat = "20060102T150405Z"

	unsignedPayload = "UNSIGNED-PAYLOAD"
)

// Authorization is the parsed content of an AWS4-HMAC-SHA256
// Authorization header.
type Authorization struct {
	AccessKeyID     string
	CredentialScope string
	SignedHeaders   []string
	Signature       string
}

// Authenticator validates AWS Signature V4 requests against a fixed set
// of credentials.
type Authenticator struct {
	credentials map[string]string // accessKeyID -> secretAccessKey
}

// NewAuthenticator creates an authenticator with no credentials.
func NewAuthenticator() *Authenticator {
	return &Authenticator{
		credentials: make(map[string]string),
	}
}

// AddCredentials registers a key pair accepted by Verify.
func (a *Authenticator) AddCredentials(accessKeyID, secretAccessKey string) {
	a.credentials[accessKeyID] = secretAccessKey
}

// Middleware rejects requests whose signature does not verify, writing
// an S3-style XML error. Chunked upload bodies are unwrapped so
// downstream handlers see the raw payload.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := a.Verify(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		if IsChunkedUpload(r) {
			r, err = a.WrapChunkedRequest(r, auth)
			if err != nil {
				writeAuthError(w, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestId string   `xml:"RequestId"`
}

func writeAuthError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Code:      "InternalError",
		Message:   "We encountered an internal error. Please try again.",
		RequestId: uuid.NewString(),
	}
	status := http.StatusInternalServerError

	var authErr *AuthError
	if errors.As(err, &authErr) {
		resp.Code = authErr.Code
		resp.Message = authErr.Message
		status = authErr.StatusCode()
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	xml.NewEncoder(w).Encode(resp)
}

// Verify validates the request signature and returns the parsed
// authorization on success.
func (a *Authenticator) Verify(r *http.Request) (Authorization, error) {
	auth, err := ParseAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return Authorization{}, err
	}

	requestTime, err := requestDate(r)
	if err != nil {
		return Authorization{}, err
	}
	if skew := time.Since(requestTime); skew > maxClockSkew || skew < -maxClockSkew {
		return Authorization{}, errRequestTimeSkewed
	}

	if r.Header.Get("X-Amz-Content-Sha256") == "" {
		return Authorization{}, errMissingContentSha
	}

	secretAccessKey, exists := a.credentials[auth.AccessKeyID]
	if !exists {
		return Authorization{}, errUnknownAccessKey
	}

	scopeParts := strings.Split(auth.CredentialScope, "/")
	if len(scopeParts) != 4 {
		return Authorization{}, errMalformedScope
	}
	date := scopeParts[0]

	canonicalRequest := createCanonicalRequest(r, auth.SignedHeaders)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzTimestamp(r, requestTime),
		auth.CredentialScope,
		sha256Hash(canonicalRequest),
	}, "\n")

	signingKey := CalculateSigningKey(secretAccessKey, date)
	expected := hmacSHA256(signingKey, []byte(stringToSign))

	provided, err := hex.DecodeString(auth.Signature)
	if err != nil || !hmac.Equal(expected, provided) {
		return Authorization{}, errSignatureMismatch
	}

	return auth, nil
}

// ParseAuthorizationHeader parses an AWS4-HMAC-SHA256 Authorization
// header into its credential, signed-headers and signature parts.
func ParseAuthorizationHeader(header string) (Authorization, error) {
	if header == "" {
		return Authorization{}, errMissingAuth
	}
	if !strings.HasPrefix(header, authPrefix) {
		return Authorization{}, errMalformedAuth
	}

	params := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(header, authPrefix), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}

	credential := params["Credential"]
	signedHeaders := params["SignedHeaders"]
	signature := params["Signature"]
	if credential == "" || signedHeaders == "" || signature == "" {
		return Authorization{}, errMalformedAuth
	}

	// Credential is accessKeyID/date/region/service/aws4_request.
	credParts := strings.SplitN(credential, "/", 2)
	if len(credParts) != 2 || strings.Count(credParts[1], "/") != 3 {
		return Authorization{}, errMalformedAuth
	}

	return Authorization{
		AccessKeyID:     credParts[0],
		CredentialScope: credParts[1],
		SignedHeaders:   strings.Split(signedHeaders, ";"),
		Signature:       signature,
	}, nil
}

// requestDate resolves the timestamp the client signed with: X-Amz-Date
// in ISO 8601 basic format, falling back to an RFC 1123 Date header.
func requestDate(r *http.Request) (time.Time, error) {
	if amzDate := r.Header.Get("X-Amz-Date"); amzDate != "" {
		t, err := time.Parse(amzDateFormat, amzDate)
		if err != nil {
			return time.Time{}, errMalformedDate
		}
		return t, nil
	}

	date := r.Header.Get("Date")
	if date == "" {
		return time.Time{}, errMissingDate
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, date); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errMalformedDate
}

// amzTimestamp returns the timestamp string used in the string to sign,
// exactly as the client sent it.
func amzTimestamp(r *http.Request, requestTime time.Time) string {
	if amzDate := r.Header.Get("X-Amz-Date"); amzDate != "" {
		return amzDate
	}
	return requestTime.UTC().Format(amzDateFormat)
}

// createCanonicalRequest builds the SigV4 canonical request. The URI and
// query string keep the client's percent-encoding verbatim; headers are
// taken in the order SignedHeaders lists them, skipping names the
// request does not carry.
func createCanonicalRequest(r *http.Request, signedHeaders []string) string {
	uri := r.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}

	var headers strings.Builder
	for _, name := range signedHeaders {
		name = strings.ToLower(name)
		value, ok := headerValue(r, name)
		if !ok {
			continue
		}
		headers.WriteString(name)
		headers.WriteString(":")
		headers.WriteString(strings.TrimSpace(value))
		headers.WriteString("\n")
	}

	return strings.Join([]string{
		r.Method,
		uri,
		canonicalQueryString(r.URL.RawQuery),
		headers.String(),
		strings.Join(signedHeaders, ";"),
		r.Header.Get("X-Amz-Content-Sha256"),
	}, "\n")
}

func headerValue(r *http.Request, name string) (string, bool) {
	if name == "host" {
		return r.Host, true
	}
	vals, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// canonicalQueryString sorts the raw query pairs by key then value
// without re-encoding them.
func canonicalQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	type queryPair struct {
		key, value string
	}
	pairs := make([]queryPair, 0, strings.Count(rawQuery, "&")+1)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		pairs = append(pairs, queryPair{key: key, value: value})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	canonical := make([]string, len(pairs))
	for i, p := range pairs {
		canonical[i] = p.key + "=" + p.value
	}
	return strings.Join(canonical, "&")
}

// sha256Hash calculates the hex SHA256 hash of data.
func sha256Hash(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// hmacSHA256 calculates HMAC-SHA256.
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// CalculateSigningKey derives the SigV4 signing key for the given date.
func CalculateSigningKey(secretAccessKey, date string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretAccessKey), []byte(date))
	dateRegionKey := hmacSHA256(dateKey, []byte(signingRegion))
	dateRegionServiceKey := hmacSHA256(dateRegionKey, []byte(signingService))
	return hmacSHA256(dateRegionServiceKey, []byte("aws4_request"))
}
