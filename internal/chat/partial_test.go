package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{name: "complete object", in: `{"message":"hi"}`, want: `{"message":"hi"}`, wantOK: true},
		{name: "open string value", in: `{"message":"hel`, want: `{"message":"hel"}`, wantOK: true},
		{name: "open key", in: `{"mess`, want: `{}`, wantOK: true},
		{name: "key without value", in: `{"message":`, want: `{}`, wantOK: true},
		{name: "dangling comma", in: `{"message":"hi",`, want: `{"message":"hi"}`, wantOK: true},
		{name: "dangling escape", in: `{"message":"a\`, want: `{"message":"a"}`, wantOK: true},
		{name: "unfinished unicode escape", in: `{"message":"a\u00`, want: `{"message":"a"}`, wantOK: true},
		{name: "complete escape", in: `{"message":"a\"b`, want: `{"message":"a\"b"}`, wantOK: true},
		{name: "unfinished literal", in: `{"message":"x","done":tru`, want: `{"message":"x"}`, wantOK: true},
		{name: "number", in: `{"n":12`, want: `{"n":12}`, wantOK: true},
		{name: "nested", in: `{"a":[1,{"b":"c`, want: `{"a":[1,{"b":"c"}]}`, wantOK: true},
		{name: "empty", in: ``, wantOK: false},
		{name: "whitespace", in: "  \n", wantOK: false},
		{name: "garbage", in: `{"a":xyz,`, wantOK: false},
		{name: "mismatched closer", in: `{"a":1]`, wantOK: false},
		{name: "bare key literal", in: `{abc`, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := repairJSON(tc.in)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestParsePartialEveryPrefix(t *testing.T) {
	body := `{"message":"Your policy \"P-1\" renews in May.\nSee the endorsement."}`

	last := ""
	for i := 0; i <= len(body); i++ {
		resp, ok := parsePartial([]byte(body[:i]))
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, len(resp.Message), len(last), "prefix %d shrank the message", i)
		last = resp.Message
	}
	assert.Equal(t, "Your policy \"P-1\" renews in May.\nSee the endorsement.", last)
}

func TestParsePartialRejectsWrongTypes(t *testing.T) {
	_, ok := parsePartial([]byte(`{"message":12`))
	assert.False(t, ok)

	_, ok = parsePartial([]byte(`["message"`))
	assert.False(t, ok)
}

func TestParsePartialSplitRune(t *testing.T) {
	full := []byte(`{"message":"café`)
	cut := full[:len(full)-1] // drops the second byte of é

	resp, ok := parsePartial(cut)
	require.True(t, ok)
	assert.Equal(t, "caf", resp.Message)
}

func TestDecodeFinal(t *testing.T) {
	resp, err := decodeFinal([]byte(`{"message":"done","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Message)

	_, err = decodeFinal([]byte(`{"message":"do`))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = decodeFinal([]byte(`{"text":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = decodeFinal([]byte(`{"message":3}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
