package remote

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func errorResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestDecodeServiceError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "auth api with numeric code",
			status:      http.StatusUnprocessableEntity,
			body:        `{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`,
			wantCode:    "weak_password",
			wantMessage: "Password should be at least 6 characters.",
		},
		{
			name:        "oauth style",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			wantCode:    "invalid_grant",
			wantMessage: "Invalid login credentials",
		},
		{
			name:        "rest api",
			status:      http.StatusNotAcceptable,
			body:        `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`,
			wantCode:    "PGRST116",
			wantMessage: "JSON object requested, multiple (or no) rows returned",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable\n",
			wantMessage: "upstream unavailable",
		},
		{
			name:        "empty body",
			status:      http.StatusServiceUnavailable,
			body:        "",
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeServiceError(errorResponse(tt.status, tt.body))
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
			if err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMessage)
			}
		})
	}
}
