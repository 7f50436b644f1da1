package live

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// STOMP 1.2 commands used by the subscriber
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
)

// ErrMalformedFrame is returned by ParseFrames for data that is not STOMP
var ErrMalformedFrame = errors.New("stomp: malformed frame")

// Header is a single STOMP header
type Header struct {
	Key   string
	Value string
}

// Frame is a STOMP frame. Headers keep wire order; when a key repeats the
// first occurrence is authoritative.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// NewFrame builds a frame from alternating key/value pairs
func NewFrame(command string, kv ...string) Frame {
	f := Frame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Get returns the value of the first header named key
func (f Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// escapes reports whether header values are escaped for this command.
// CONNECT and CONNECTED frames are exempt.
func escapes(command string) bool {
	return command != CmdConnect && command != CmdConnected
}

var (
	headerEscaper   = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	headerUnescaper = strings.NewReplacer(`\\`, `\`, `\r`, "\r", `\n`, "\n", `\c`, ":")
)

// Encode serialises the frame, terminated by NUL. A content-length header is
// added for non-empty bodies unless one is already present.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	escape := escapes(f.Command)
	for _, h := range f.Headers {
		if escape {
			buf.WriteString(headerEscaper.Replace(h.Key))
			buf.WriteByte(':')
			buf.WriteString(headerEscaper.Replace(h.Value))
		} else {
			buf.WriteString(h.Key)
			buf.WriteByte(':')
			buf.WriteString(h.Value)
		}
		buf.WriteByte('\n')
	}
	if _, ok := f.Get("content-length"); !ok && len(f.Body) > 0 {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseFrames decodes every frame in a websocket message. EOLs between frames
// are heart-beats; a message holding only EOLs yields no frames.
func ParseFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	for {
		data = skipEOL(data)
		if len(data) == 0 {
			return frames, nil
		}
		frame, rest, err := parseFrame(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		data = rest
	}
}

// IsHeartbeat reports whether a websocket message is only heart-beat EOLs
func IsHeartbeat(data []byte) bool {
	return len(data) > 0 && len(skipEOL(data)) == 0
}

func skipEOL(data []byte) []byte {
	for len(data) > 0 && (data[0] == '\n' || data[0] == '\r') {
		data = data[1:]
	}
	return data
}

func readLine(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", data, false
	}
	line := data[:i]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), data[i+1:], true
}

func parseFrame(data []byte) (Frame, []byte, error) {
	command, rest, ok := readLine(data)
	if !ok || command == "" {
		return Frame{}, nil, fmt.Errorf("%w: missing command", ErrMalformedFrame)
	}
	frame := Frame{Command: command}
	escape := escapes(command)

	for {
		var line string
		line, rest, ok = readLine(rest)
		if !ok {
			return Frame{}, nil, fmt.Errorf("%w: unterminated headers in %s", ErrMalformedFrame, command)
		}
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return Frame{}, nil, fmt.Errorf("%w: header %q has no colon", ErrMalformedFrame, line)
		}
		if escape {
			key = headerUnescaper.Replace(key)
			value = headerUnescaper.Replace(value)
		}
		frame.Headers = append(frame.Headers, Header{Key: key, Value: value})
	}

	if cl, ok := frame.Get("content-length"); ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return Frame{}, nil, fmt.Errorf("%w: bad content-length %q", ErrMalformedFrame, cl)
		}
		if len(rest) < n+1 || rest[n] != 0 {
			return Frame{}, nil, fmt.Errorf("%w: body shorter than content-length %d", ErrMalformedFrame, n)
		}
		frame.Body = rest[:n]
		return frame, rest[n+1:], nil
	}

	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return Frame{}, nil, fmt.Errorf("%w: missing NUL terminator in %s", ErrMalformedFrame, command)
	}
	frame.Body = rest[:end]
	return frame, rest[end+1:], nil
}

// HeartBeat is a "heart-beat" header value: the minimum interval a side can
// send at and the interval it wants to receive at. Zero disables a direction.
type HeartBeat struct {
	Send    time.Duration
	Receive time.Duration
}

// String renders the header value in milliseconds, e.g. "4000,4000"
func (hb HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", hb.Send.Milliseconds(), hb.Receive.Milliseconds())
}

// ParseHeartBeat parses a "heart-beat" header value
func ParseHeartBeat(value string) (HeartBeat, error) {
	sx, sy, ok := strings.Cut(strings.TrimSpace(value), ",")
	if !ok {
		return HeartBeat{}, fmt.Errorf("%w: heart-beat %q", ErrMalformedFrame, value)
	}
	send, err1 := strconv.Atoi(strings.TrimSpace(sx))
	receive, err2 := strconv.Atoi(strings.TrimSpace(sy))
	if err1 != nil || err2 != nil || send < 0 || receive < 0 {
		return HeartBeat{}, fmt.Errorf("%w: heart-beat %q", ErrMalformedFrame, value)
	}
	return HeartBeat{
		Send:    time.Duration(send) * time.Millisecond,
		Receive: time.Duration(receive) * time.Millisecond,
	}, nil
}

// Negotiate resolves the client's heart-beat against the server's CONNECTED
// header. outgoing is how often the client must send; incoming is how often
// the server will send. Zero means that direction is off.
func Negotiate(client, server HeartBeat) (outgoing, incoming time.Duration) {
	if client.Send > 0 && server.Receive > 0 {
		outgoing = max(client.Send, server.Receive)
	}
	if client.Receive > 0 && server.Send > 0 {
		incoming = max(client.Receive, server.Send)
	}
	return outgoing, incoming
}
