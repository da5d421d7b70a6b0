package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prismworlds/portal/internal/model"
)

const (
	userAgent = "PrismWorlds/1.0"
	// maxErrorBodySize はエラーレスポンスとして読み取る最大バイト数。
	maxErrorBodySize = 64 << 10
)

// endpoint はリモートサービスのベースURLとanonキーを保持し、
// 共通ヘッダ付きのリクエストを組み立てる。
type endpoint struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
}

// newRequest はJSONボディ付きのリクエストを生成する。
// bearerが空の場合はanonキーで認可する。
func (e *endpoint) newRequest(ctx context.Context, method, path string, body any, bearer string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if bearer == "" {
		bearer = e.anonKey
	}
	req.Header.Set("apikey", e.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do はリクエストを実行する。2xx以外のステータスはServiceErrorに変換し、
// 成功時はoutにレスポンスボディをデコードする（outがnilの場合は読み捨てる）。
func (e *endpoint) do(req *http.Request, out any) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &model.ServiceError{
			Code:    "network_error",
			Message: "Unable to reach the service. Check your connection and try again.",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeServiceError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.ServiceError{
			Code:    "invalid_response",
			Message: "The service returned an unexpected response.",
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// errorBody は認証APIとREST APIのエラーボディの和集合。
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

// decodeServiceError はエラーレスポンスをServiceErrorに変換する。
// 表示用メッセージは msg → message → error_description → error の順で採用する。
func decodeServiceError(resp *http.Response) *model.ServiceError {
	svcErr := &model.ServiceError{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return svcErr
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			svcErr.Message = text
		}
		return svcErr
	}

	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			svcErr.Message = m
			break
		}
	}

	// codeは認証APIでは数値、REST APIでは文字列で返る
	var code string
	if len(body.Code) > 0 && json.Unmarshal(body.Code, &code) == nil && code != "" {
		svcErr.Code = code
	}
	switch {
	case body.ErrorCode != "":
		svcErr.Code = body.ErrorCode
	case svcErr.Code == "" && body.Error != "":
		svcErr.Code = body.Error
	}

	return svcErr
}
