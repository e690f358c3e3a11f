package utils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 32)
		assert.Equal(t, strings.ToUpper(code), code)
		_, err = hex.DecodeString(code)
		assert.NoError(t, err)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestEncryptDecryptMessage(t *testing.T) {
	key, err := DecodeKey(testKey)
	require.NoError(t, err)

	enc, err := EncryptMessage(key, `{"code":"ABCDEF"}`)
	require.NoError(t, err)
	assert.NotContains(t, enc, "ABCDEF")

	msg, err := DecryptMessage(key, enc)
	require.NoError(t, err)
	assert.Equal(t, `{"code":"ABCDEF"}`, *msg)
}

func TestDecryptMessageRejectsTampering(t *testing.T) {
	key, err := DecodeKey(testKey)
	require.NoError(t, err)
	enc, err := EncryptMessage(key, "hello")
	require.NoError(t, err)

	last := enc[len(enc)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	_, err = DecryptMessage(key, enc[:len(enc)-1]+string(flipped))
	assert.Error(t, err)

	_, err = DecryptMessage(key, "abcd")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecryptMessage(key, "not-hex")
	assert.Error(t, err)
}

func TestDecodeKey(t *testing.T) {
	_, err := DecodeKey("zz")
	assert.Error(t, err)
	_, err = DecodeKey("abcd")
	assert.Error(t, err)
	key, err := DecodeKey(testKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
