package model

import (
	"bytes"
	"encoding/json"
)

// Nullable はJSONの「未指定」「null」「値あり」を区別する部分更新用のフィールド。
// 未指定の場合はSetがfalseになり、omitzeroで出力から除かれる。
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableValue は値ありのNullableを返す。
func NullableValue[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null はnullを指定したNullableを返す。
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// IsZero は未指定の場合にtrueを返す。
func (n Nullable[T]) IsZero() bool {
	return !n.Set
}

// MarshalJSON はjson.Marshalerを実装する。
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// UnmarshalJSON はjson.Unmarshalerを実装する。キーが存在すればnullでもSetになる。
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}
