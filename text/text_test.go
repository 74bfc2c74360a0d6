package text_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/msgstream"
	"github.com/Zereker/msgstream/text"
)

func body(size int32, s string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(size))
	return append(b, s...)
}

func TestCodec_EncodeLayout(t *testing.T) {
	codec := text.New(7)

	b, err := codec.Encode(text.Message{ID: 7, Body: "ping"})
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 0, 0, 'p', 'i', 'n', 'g'}, b)

	b, err = codec.Encode(text.Message{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := text.New(3)

	for _, s := range []string{"", "a", "héllo wörld", strings.Repeat("x", 60000)} {
		b, err := codec.Encode(text.Message{ID: 3, Body: s})
		require.NoError(t, err)

		m, err := codec.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, text.Message{ID: 3, Body: s}, m)
	}
}

func TestCodec_EncodeRejectsForeignMessages(t *testing.T) {
	codec := text.New(7)

	_, err := codec.Encode(text.Message{ID: 8, Body: "pong"})
	assert.Error(t, err)

	_, err = codec.Encode(msgstream.ShutdownRequested)
	assert.Error(t, err)
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := text.New(1)

	tests := []struct {
		name string
		body []byte
		err  error
	}{
		{"empty", nil, text.ErrShortBody},
		{"short length", []byte{1, 0}, text.ErrShortBody},
		{"negative length", body(-1, ""), text.ErrNegativeLength},
		{"length past end", body(5, "abc"), text.ErrShortBody},
		{"trailing bytes", body(2, "abc"), text.ErrTrailingBytes},
		{"invalid utf-8", body(2, "\xff\xfe"), text.ErrInvalidUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.body)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCodec_DecodeCopiesBody(t *testing.T) {
	codec := text.New(1)
	b := body(3, "abc")

	m, err := codec.Decode(b)
	require.NoError(t, err)

	copy(b[4:], "xyz")
	assert.Equal(t, "abc", m.(text.Message).Body)
}

func TestCodec_EqualAndHash(t *testing.T) {
	codec := text.New(1)
	a := text.Message{ID: 1, Body: "same"}
	b := text.Message{ID: 1, Body: "same"}
	c := text.Message{ID: 1, Body: "other"}

	assert.True(t, codec.Equal(a, b))
	assert.False(t, codec.Equal(a, c))
	assert.False(t, codec.Equal(a, msgstream.ClientConnectionAdded))

	assert.Equal(t, codec.Hash(a), codec.Hash(b))
	assert.NotEqual(t, codec.Hash(a), codec.Hash(c))
	assert.NotEqual(t, codec.Hash(a), codec.Hash(text.Message{ID: 2, Body: "same"}))
}

func TestCodec_ThroughRegistry(t *testing.T) {
	registry, err := msgstream.NewRegistry(text.New(7), text.New(8))
	require.NoError(t, err)

	payload, err := registry.Marshal(text.Message{ID: 7, Body: "ping"})
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 0, 0, 0, 4, 0, 0, 0, 'p', 'i', 'n', 'g'}, payload)

	m, err := registry.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, text.Message{ID: 7, Body: "ping"}, m)
}
