package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// DataField 是stream訊息中存放序列化資料的欄位
const DataField = "data"

var (
	ErrPointerType  = errors.New("pointer type is not allowed")
	ErrMissingField = errors.New("data field not found or invalid type")
)

// EncodeData 將資料以 msgpack 序列化後再做 base64 編碼
// Lua script 直接寫入stream時也使用同樣的格式
func EncodeData[T any](data T) (string, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return "", ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("msgpack marshal error: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// DecodeData 是 EncodeData 的反向操作
func DecodeData[T any](encoded string) (T, error) {
	var result T
	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	bytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}
	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return result, nil
}

// DefaultParseToMessage 將資料封裝成stream訊息
func DefaultParseToMessage[T any](data T) (map[string]any, error) {
	encoded, err := EncodeData(data)
	if err != nil {
		return nil, err
	}
	return map[string]any{DataField: encoded}, nil
}

// DefaultParseFromMessage 從stream訊息取出資料
func DefaultParseFromMessage[T any](message map[string]any) (T, error) {
	var result T
	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	if len(message) == 0 {
		return result, nil
	}

	encoded, ok := message[DataField].(string)
	if !ok {
		return result, ErrMissingField
	}
	return DecodeData[T](encoded)
}
