package vantage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	assert.Equal(t, []byte("LOOP 1\n"), Command("LOOP %d", 1))
	assert.Equal(t, []byte("DMPAFT\n"), Command("DMPAFT"))
}

func TestCheckFrame(t *testing.T) {
	frame := Frame([]byte{1, 2, 3, 4})
	payload, err := CheckFrame(frame, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload)

	_, err = CheckFrame(frame[:5], 6)
	assert.ErrorIs(t, err, ErrShortFrame)

	frame[2] ^= 0x10
	_, err = CheckFrame(frame, 6)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestAckResult(t *testing.T) {
	assert.NoError(t, AckResult(ACK))
	assert.ErrorIs(t, AckResult(NAK), ErrNAK)
	assert.ErrorIs(t, AckResult(BadCRC), ErrNAK)
	assert.Error(t, AckResult('x'))
	assert.True(t, IsLineByte(LF))
	assert.True(t, IsLineByte(CR))
	assert.False(t, IsLineByte(ACK))
}
