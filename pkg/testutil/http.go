// Package testutil holds helpers shared by handler, service and scenario tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// JSONRequest builds a request whose body is the literal JSON in body. An
// empty body sends none.
func JSONRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Decode unmarshals the recorded body into T.
func Decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "response body: %s", rr.Body.String())
	return v
}

// ErrorCode returns the "error" field of an error response.
func ErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return Decode[map[string]string](t, rr)["error"]
}
