package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Run("編碼後可還原", func(t *testing.T) {
		msg := testMessage{ID: "1", Data: "hello"}

		values, err := DefaultParseToMessage(msg)
		require.NoError(t, err)
		require.Contains(t, values, DataField)

		got, err := DefaultParseFromMessage[testMessage](values)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("不接受指標類型", func(t *testing.T) {
		_, err := DefaultParseToMessage(&testMessage{})
		assert.ErrorIs(t, err, ErrPointerType)

		_, err = DefaultParseFromMessage[*testMessage](map[string]any{DataField: "x"})
		assert.ErrorIs(t, err, ErrPointerType)
	})

	t.Run("缺少data欄位", func(t *testing.T) {
		_, err := DefaultParseFromMessage[testMessage](map[string]any{"other": "x"})
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("data不是合法base64", func(t *testing.T) {
		_, err := DefaultParseFromMessage[testMessage](map[string]any{DataField: "%%%"})
		assert.ErrorContains(t, err, "base64 decode error")
	})

	t.Run("空訊息返回零值", func(t *testing.T) {
		got, err := DefaultParseFromMessage[testMessage](map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, testMessage{}, got)
	})
}
