// Package repository はPostgreSQLに直接接続するレコードストアを提供する。
// ホスト型サービスのREST APIを経由せず、同じスキーマに対して同じ意味の操作を行う。
package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/remote"
)

// columnKind はJSON値をSQLパラメータへ変換する方法。
type columnKind int

const (
	kindScalar    columnKind = iota // 文字列・数値・null
	kindTextArray                   // text[]
	kindJSONB                       // jsonb
)

// writableColumns はテーブルごとに書き込みを許可するカラム。
// created_at、updated_at はデータベース側で管理する。
var writableColumns = map[remote.Table]map[string]columnKind{
	remote.TableUserProfiles: {
		"id":         kindScalar,
		"email":      kindScalar,
		"full_name":  kindScalar,
		"role":       kindScalar,
		"avatar_url": kindScalar,
	},
	remote.TableStudents: {
		"id":                   kindScalar,
		"grade":                kindScalar,
		"school":               kindScalar,
		"state":                kindScalar,
		"eco_points":           kindScalar,
		"level":                kindScalar,
		"streak":               kindScalar,
		"completed_lessons":    kindTextArray,
		"completed_challenges": kindTextArray,
		"earned_badges":        kindJSONB,
		"total_impact_score":   kindScalar,
		"weekly_goal":          kindScalar,
		"monthly_goal":         kindScalar,
		"join_date":            kindScalar,
	},
	remote.TableTeachers: {
		"id":               kindScalar,
		"school":           kindScalar,
		"subject":          kindScalar,
		"experience_years": kindScalar,
	},
}

// PostgresRecordStore はPostgreSQLを使用したレコードストア。
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore はPostgresRecordStoreを生成する。
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// FetchRecord は主キーidの行をJSONとして読み出し、destにデコードする。
// 行が存在しない場合は found=false を返す。
func (r *PostgresRecordStore) FetchRecord(ctx context.Context, table remote.Table, id string, dest any) (bool, error) {
	if _, ok := writableColumns[table]; !ok {
		return false, unknownTableError(table)
	}

	var raw []byte
	query := fmt.Sprintf(`SELECT row_to_json(t) FROM %s t WHERE t.id = $1`, pq.QuoteIdentifier(string(table)))
	err := r.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, toServiceError(fmt.Sprintf("failed to fetch %s row", table), err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return true, nil
}

// InsertRecord は行を挿入する。recordのJSON表現のキーをカラム名として扱う。
func (r *PostgresRecordStore) InsertRecord(ctx context.Context, table remote.Table, record any) error {
	cols, args, err := columnValues(table, record)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return &model.ServiceError{
			Code:    "empty_record",
			Message: "Nothing to insert.",
			Status:  http.StatusBadRequest,
		}
	}

	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		pq.QuoteIdentifier(string(table)),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return toServiceError(fmt.Sprintf("failed to insert %s row", table), err)
	}
	return nil
}

// UpdateRecord は主キーidの行を部分更新する。partialに含まれるカラムだけを変更する。
// 該当行がない場合も成功として扱う。
func (r *PostgresRecordStore) UpdateRecord(ctx context.Context, table remote.Table, id string, partial any) error {
	cols, args, err := columnValues(table, partial)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		if c == "id" {
			return &model.ServiceError{
				Code:    "immutable_column",
				Message: "The id column cannot be updated.",
				Status:  http.StatusBadRequest,
			}
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), i+1))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		pq.QuoteIdentifier(string(table)),
		strings.Join(sets, ", "),
		len(args),
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return toServiceError(fmt.Sprintf("failed to update %s row", table), err)
	}
	return nil
}

// columnValues はvalueをJSONオブジェクトとして展開し、
// カラム名（昇順）とSQLパラメータの組に変換する。
func columnValues(table remote.Table, value any) ([]string, []any, error) {
	allowed, ok := writableColumns[table]
	if !ok {
		return nil, nil, unknownTableError(table)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s record: %w", table, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, nil, fmt.Errorf("%s record must be a JSON object: %w", table, err)
	}

	cols := make([]string, 0, len(fields))
	for name := range fields {
		if _, ok := allowed[name]; !ok {
			return nil, nil, &model.ServiceError{
				Code:    "unknown_column",
				Message: fmt.Sprintf("Could not find the '%s' column of '%s'.", name, table),
				Status:  http.StatusBadRequest,
			}
		}
		cols = append(cols, name)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, name := range cols {
		arg, err := toParam(allowed[name], fields[name])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid value for %s.%s: %w", table, name, err)
		}
		args[i] = arg
	}
	return cols, args, nil
}

// toParam はJSON値をカラム種別に応じたSQLパラメータに変換する。
func toParam(kind columnKind, raw json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	switch kind {
	case kindTextArray:
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
		return pq.Array(values), nil
	case kindJSONB:
		return string(raw), nil
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case json.Number:
			return x.String(), nil
		case string, bool:
			return x, nil
		}
		return nil, fmt.Errorf("unsupported JSON value %s", raw)
	}
}

// toServiceError はデータベースエラーをServiceErrorに変換する。
// 制約違反など入力起因のエラーは4xx相当のステータスを付与する。
func toServiceError(msg string, err error) error {
	svcErr := &model.ServiceError{
		Code:    "database_error",
		Message: "The database request failed.",
		Err:     fmt.Errorf("%s: %w", msg, err),
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return svcErr
	}

	svcErr.Code = string(pqErr.Code)
	svcErr.Message = pqErr.Message
	switch pqErr.Code.Class() {
	case "23": // integrity_constraint_violation
		svcErr.Status = http.StatusBadRequest
		if pqErr.Code == "23505" {
			svcErr.Status = http.StatusConflict
		}
	case "22": // data_exception
		svcErr.Status = http.StatusBadRequest
	case "42":
		if pqErr.Code == "42501" {
			svcErr.Status = http.StatusForbidden
		}
	}
	return svcErr
}

func unknownTableError(table remote.Table) error {
	return &model.ServiceError{
		Code:    "invalid_table",
		Message: "Unknown table: " + string(table),
		Status:  http.StatusBadRequest,
	}
}

// compile-time interface check
var _ remote.RecordStore = (*PostgresRecordStore)(nil)
