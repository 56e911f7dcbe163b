package crc16

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrc16KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint16
	}{
		{name: "empty", in: nil, want: 0},
		{name: "check string", in: []byte("123456789"), want: 0x31C3},
		{name: "dmpaft date and time", in: []byte{0xC6, 0x06, 0xA2, 0x03}, want: 0x6DE2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Crc16(tt.in))
		})
	}
}

func TestAppendVerifyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for n := 0; n < 300; n += 7 {
		payload := make([]byte, n)
		rng.Read(payload)

		frame := Append(append([]byte(nil), payload...))
		require.Len(t, frame, n+2)
		assert.True(t, Verify(frame), "length %d", n)
	}
}

func TestVerifyDetectsSingleBitFlips(t *testing.T) {
	frame := Append([]byte("LOOP packet payload under test"))

	for i := 0; i < len(frame)*8; i++ {
		corrupt := append([]byte(nil), frame...)
		corrupt[i/8] ^= 1 << (i % 8)
		assert.False(t, Verify(corrupt), "bit %d", i)
	}
}

func TestVerifyShortFrame(t *testing.T) {
	assert.False(t, Verify(nil))
	assert.False(t, Verify([]byte{0x00}))
}
