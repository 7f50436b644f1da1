package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeParse(t *testing.T) {
	frame := NewFrame(CmdMessage,
		"destination", "/topic/in-progress",
		"subscription", "sub-1",
	)
	frame.Body = []byte(`[{"jobId":"J1"}]`)

	frames, err := ParseFrames(frame.Encode())
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0]
	assert.Equal(t, CmdMessage, got.Command)
	assert.Equal(t, frame.Body, got.Body)
	dest, ok := got.Get("destination")
	assert.True(t, ok)
	assert.Equal(t, "/topic/in-progress", dest)
	cl, _ := got.Get("content-length")
	assert.Equal(t, "16", cl)
}

func TestFrame_HeaderEscaping(t *testing.T) {
	frame := NewFrame(CmdMessage, "note", "a:b\nc\\d")
	encoded := string(frame.Encode())
	assert.Contains(t, encoded, `note:a\cb\nc\\d`)

	frames, err := ParseFrames(frame.Encode())
	require.NoError(t, err)
	v, _ := frames[0].Get("note")
	assert.Equal(t, "a:b\nc\\d", v)
}

func TestFrame_ConnectIsNotEscaped(t *testing.T) {
	frame := NewFrame(CmdConnect, "host", "broker:61613")
	assert.Contains(t, string(frame.Encode()), "host:broker:61613\n")
}

func TestFrame_RepeatedHeaderFirstWins(t *testing.T) {
	frames, err := ParseFrames([]byte("MESSAGE\nfoo:first\nfoo:second\n\n\x00"))
	require.NoError(t, err)
	v, _ := frames[0].Get("foo")
	assert.Equal(t, "first", v)
}

func TestParseFrames_MultipleFramesAndHeartbeats(t *testing.T) {
	data := []byte("\n\r\nCONNECTED\r\nversion:1.2\r\n\r\n\x00\nMESSAGE\ndestination:/t\n\nhello\x00\n")

	frames, err := ParseFrames(data)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, CmdConnected, frames[0].Command)
	v, _ := frames[0].Get("version")
	assert.Equal(t, "1.2", v)
	assert.Equal(t, "hello", string(frames[1].Body))
}

func TestParseFrames_BodyWithNULUsesContentLength(t *testing.T) {
	data := []byte("MESSAGE\ncontent-length:3\n\na\x00b\x00")

	frames, err := ParseFrames(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b"), frames[0].Body)
}

func TestParseFrames_Malformed(t *testing.T) {
	cases := map[string]string{
		"no terminator":      "MESSAGE\n\nbody",
		"no blank line":      "MESSAGE\nfoo:bar",
		"header without key": "MESSAGE\nnocolon\n\n\x00",
		"short body":         "MESSAGE\ncontent-length:10\n\nabc\x00",
		"bad length":         "MESSAGE\ncontent-length:x\n\n\x00",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFrames([]byte(data))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestIsHeartbeat(t *testing.T) {
	assert.True(t, IsHeartbeat([]byte("\n")))
	assert.True(t, IsHeartbeat([]byte("\r\n\n")))
	assert.False(t, IsHeartbeat([]byte("")))
	assert.False(t, IsHeartbeat([]byte("MESSAGE\n\n\x00")))

	frames, err := ParseFrames([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestHeartBeat(t *testing.T) {
	hb, err := ParseHeartBeat("4000, 10000")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, hb.Send)
	assert.Equal(t, 10*time.Second, hb.Receive)
	assert.Equal(t, "4000,10000", hb.String())

	_, err = ParseHeartBeat("4000")
	assert.ErrorIs(t, err, ErrMalformedFrame)
	_, err = ParseHeartBeat("-1,0")
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestNegotiate(t *testing.T) {
	client := HeartBeat{Send: 4 * time.Second, Receive: 4 * time.Second}

	out, in := Negotiate(client, HeartBeat{Send: 10 * time.Second, Receive: time.Second})
	assert.Equal(t, 4*time.Second, out)
	assert.Equal(t, 10*time.Second, in)

	out, in = Negotiate(client, HeartBeat{})
	assert.Zero(t, out)
	assert.Zero(t, in)

	out, in = Negotiate(HeartBeat{}, HeartBeat{Send: time.Second, Receive: time.Second})
	assert.Zero(t, out)
	assert.Zero(t, in)
}
