package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// Test helpers for handler tests

// createTestContext creates a test Gin context with recorder and request
func createTestContext(method, path string, body interface{}) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, jsonBody(body))
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return w, c
}

// jsonBody encodes body, passing raw strings through untouched
func jsonBody(body interface{}) io.Reader {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		return bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		return bytes.NewReader(data)
	}
}

// assertStatusCode checks if response status code matches expected
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode int) {
	t.Helper()
	if w.Code != expectedCode {
		t.Errorf("expected status %d, got %d: %s", expectedCode, w.Code, w.Body.String())
	}
}

// assertErrorCode checks the machine-readable code of an error response
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	response := decodeJSON(t, w)
	if response["code"] != expectedCode {
		t.Errorf("expected code '%s', got '%v' (%s)", expectedCode, response["code"], w.Body.String())
	}
}

// decodeJSON parses the response body as a JSON object
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return response
}
