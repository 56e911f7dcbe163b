package datafeed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantaged/internal/types"
)

func TestEncodeDecodeLoop(t *testing.T) {
	p := types.NewLoopPacket(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	p.OutTemp = 51.3

	buf, err := Encode(FrameLoop, p)
	require.NoError(t, err)
	assert.Equal(t, StartSequence[:], buf[:4])
	assert.Equal(t, byte(FrameLoop), buf[4])

	f, used, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), used)
	assert.Equal(t, FrameLoop, f.Type)

	got, err := f.Loop()
	require.NoError(t, err)
	assert.Equal(t, 51.3, got.OutTemp)
	assert.True(t, p.Timestamp.Equal(got.Timestamp))
}

func TestDecode(t *testing.T) {
	frame, err := Encode(FrameArchiveRequest, ArchiveRequest{After: time.Unix(1700000000, 0)})
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       []byte
		wantErr  error
		wantUsed int
	}{
		{"complete", frame, nil, len(frame)},
		{"leading garbage", append([]byte{1, 2, 3}, frame...), nil, len(frame) + 3},
		{"header only", frame[:6], ErrShortFrame, 0},
		{"partial payload", frame[:len(frame)-1], ErrShortFrame, 0},
		{"garbage only", []byte{9, 9, 9, 9, 9, 9}, ErrShortFrame, 3},
		{"oversized", []byte{0xF3, 0xD1, 0x7C, 0xA5, 1, 0xFF, 0xFF, 0xFF, 0xFF}, ErrFrameTooLarge, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, used, err := Decode(tt.in)
			assert.Equal(t, tt.wantUsed, used)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			req, err := f.ArchiveRequest()
			require.NoError(t, err)
			assert.Equal(t, int64(1700000000), req.After.Unix())
		})
	}
}

func TestReadFrame(t *testing.T) {
	p := types.NewArchivePacket(time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC), 5)
	p.Set(types.OutTemp, 48.2)
	a, err := Encode(FrameArchive, p)
	require.NoError(t, err)
	l, err := Encode(FrameLoop, types.NewLoopPacket(time.Now()))
	require.NoError(t, err)

	r := bytes.NewReader(append(append([]byte{0x00, 0xF3}, a...), l...))

	f, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, FrameArchive, f.Type)
	got, err := f.Archive()
	require.NoError(t, err)
	assert.Equal(t, 48.2, got.Value(types.OutTemp))
	assert.Equal(t, 5, got.Interval)

	f, err = ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, FrameLoop, f.Type)
}
