package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/threadflat/internal/model"
)

func decodeBody(t *testing.T, resp *http.Response) ErrorResponseBody {
	t.Helper()

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteErrorResponse_SubmissionErrors は投稿APIのエラーが統一フォーマットで返ることを検証する。
func TestWriteErrorResponse_SubmissionErrors(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *model.APIError
		statusCode int
	}{
		{"invalid id", model.NewInvalidSubmissionIDError("t1_zzz"), http.StatusBadRequest},
		{"not found", model.NewSubmissionNotFoundError("abc"), http.StatusNotFound},
		{"too large", model.NewReplySetTooLargeError(250001, 250000), http.StatusUnprocessableEntity},
		{"rate limited", model.NewRateLimitExceededError(), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			got := decodeBody(t, resp)
			want := ErrorResponseBody{
				Code:     tt.apiErr.Code,
				Message:  tt.apiErr.Message,
				Category: tt.apiErr.Category,
				Action:   tt.apiErr.Action,
			}
			if got != want {
				t.Errorf("body = %+v, want %+v", got, want)
			}
			if got.Message == "" || got.Category == "" {
				t.Errorf("message and category must be set: %+v", got)
			}
		})
	}
}

// TestWriteInternalServerError は内部エラーが詳細を含まずsystemカテゴリで返ることを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	body := decodeBody(t, resp)
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeInvalidSubmissionID, http.StatusBadRequest},
		{model.ErrCodeSubmissionNotFound, http.StatusNotFound},
		{model.ErrCodeReplySetTooLarge, http.StatusUnprocessableEntity},
		{model.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{model.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWriteAPIError_UsesMappedStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewSubmissionNotFoundError("abc"))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeSubmissionNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeSubmissionNotFound)
	}
}
