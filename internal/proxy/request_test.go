package proxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`), "gpt-4o-mini")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Len(t, req.Messages, 1)
}

func TestParseRequest_Errors(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`), "m")
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = ParseRequest([]byte(`{"messages":null}`), "m")
	assert.ErrorIs(t, err, ErrMessagesRequired)

	_, err = ParseRequest(nil, "m")
	assert.ErrorIs(t, err, ErrMessagesRequired)
}

func TestLastMessageText(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		want     string
	}{
		{"string content", []string{`{"role":"system","content":"a"}`, `{"role":"user","content":"b"}`}, "b"},
		{"array content", []string{`{"role":"user","content":[{"type":"text","text":"hi"}]}`}, `[{"type":"text","text":"hi"}]`},
		{"null content", []string{`{"role":"assistant","content":null}`}, ""},
		{"no content", []string{`{"role":"user"}`}, ""},
		{"not an object", []string{`"hello"`}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw []json.RawMessage
			for _, m := range tt.messages {
				raw = append(raw, json.RawMessage(m))
			}
			assert.Equal(t, tt.want, lastMessageText(raw))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdef", 5))
	assert.Equal(t, "héé", truncate("hééllo", 3))
	assert.Equal(t, "", truncate("", 3))
}

func TestTruncate_CleansUnstorableText(t *testing.T) {
	assert.Equal(t, "hithere", truncate("hi\x00there", 10))
	assert.Equal(t, "�bad gateway", truncate("\xff\xfebad gateway", 50))
	assert.Equal(t, "ab", truncate("a\x00b\x00c", 2))
}
