package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// TokenSource は現在のアクセストークンを提供する。
type TokenSource interface {
	AccessToken() string
}

// PostgRESTRecords はホスト型サービスのREST API（/rest/v1）を使うRecordStore。
// 行レベルセキュリティのため、サインイン中はユーザーのアクセストークンで認可する。
type PostgRESTRecords struct {
	api    endpoint
	tokens TokenSource
	logger *slog.Logger
}

// NewPostgRESTRecords はPostgRESTRecordsを生成する。
func NewPostgRESTRecords(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string, tokens TokenSource) *PostgRESTRecords {
	return &PostgRESTRecords{
		api: endpoint{
			httpClient: httpClient,
			baseURL:    baseURL,
			anonKey:    anonKey,
		},
		tokens: tokens,
		logger: logger,
	}
}

// FetchRecord は主キーidの行をdestにデコードする。行がなければfound=falseを返す。
func (p *PostgRESTRecords) FetchRecord(ctx context.Context, table Table, id string, dest any) (bool, error) {
	path := fmt.Sprintf("/rest/v1/%s?id=eq.%s&select=*", table, url.QueryEscape(id))
	req, err := p.api.newRequest(ctx, http.MethodGet, path, nil, p.bearer())
	if err != nil {
		return false, err
	}

	var rows []json.RawMessage
	if err := p.api.do(req, &rows); err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	if len(rows) > 1 {
		p.logger.Warn("multiple rows for primary key",
			slog.String("table", string(table)),
			slog.String("id", id),
		)
	}

	if err := json.Unmarshal(rows[0], dest); err != nil {
		return false, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return true, nil
}

// InsertRecord は行を挿入する。
func (p *PostgRESTRecords) InsertRecord(ctx context.Context, table Table, record any) error {
	req, err := p.api.newRequest(ctx, http.MethodPost, "/rest/v1/"+string(table), record, p.bearer())
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")
	return p.api.do(req, nil)
}

// UpdateRecord は主キーidの行を部分更新する。
func (p *PostgRESTRecords) UpdateRecord(ctx context.Context, table Table, id string, partial any) error {
	path := fmt.Sprintf("/rest/v1/%s?id=eq.%s", table, url.QueryEscape(id))
	req, err := p.api.newRequest(ctx, http.MethodPatch, path, partial, p.bearer())
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")
	return p.api.do(req, nil)
}

func (p *PostgRESTRecords) bearer() string {
	if p.tokens == nil {
		return ""
	}
	return p.tokens.AccessToken()
}

// compile-time interface check
var _ RecordStore = (*PostgRESTRecords)(nil)
