package livesync

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
	"unicode/utf16"
)

// debuggerPort is the fixed TCP port the iOS debugger channel listens
// on (spec.md §6).
const debuggerPort = 18181

// reconnectConfig controls the debugger socket's establish-on-failure
// backoff, mirroring the teacher's video-stream reconnect shape
// (internal/preview/video.go, relayVideoStreamWithConfig).
type reconnectConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var defaultReconnectConfig = reconnectConfig{
	maxRetries:     5,
	initialBackoff: 200 * time.Millisecond,
	maxBackoff:     2 * time.Second,
}

// Dialer opens the debugger channel to a device: an attach-request
// notification on the simulator, or a forwarded local port on device
// (spec.md §4.7). The low-level transport is an external collaborator;
// this package only frames and sends messages over whatever net.Conn
// Dialer hands back.
type Dialer func(ctx context.Context) (net.Conn, error)

// DebuggerSocket frames and sends Chrome DevTools Protocol messages
// over the iOS live-edit debugger channel. A socket-level error
// destroys the connection; the next Send re-establishes it
// transparently, falling back to the caller treating the device as
// needing a restart if establishment itself times out (spec.md §7,
// DebuggerSocket kind).
type DebuggerSocket struct {
	dial   Dialer
	retry  reconnectConfig
	conn   net.Conn
	logger *slog.Logger
}

// NewDebuggerSocket returns a socket that lazily dials on first Send.
func NewDebuggerSocket(dial Dialer, logger *slog.Logger) *DebuggerSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebuggerSocket{dial: dial, retry: defaultReconnectConfig, logger: logger}
}

// Close tears down the underlying connection, if any (the teardown
// callback spec.md §5 describes for process-exit cancellation).
func (s *DebuggerSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *DebuggerSocket) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	backoff := s.retry.initialBackoff
	var lastErr error
	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		conn, err := s.dial(ctx)
		if err == nil {
			s.conn = conn
			return nil
		}
		lastErr = err
		if attempt == s.retry.maxRetries {
			break
		}
		s.logger.Debug("debugger socket establish failed, retrying", "attempt", attempt+1, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.retry.maxBackoff)
	}
	return fmt.Errorf("establishing debugger socket after %d attempts: %w", s.retry.maxRetries+1, lastErr)
}

// send frames and writes one CDP message, destroying the connection on
// any I/O error so the next call re-establishes it (spec.md §7).
func (s *DebuggerSocket) send(ctx context.Context, msg any) error {
	if err := s.ensureConn(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling debugger message: %w", err)
	}
	frame := encodeFrame(string(payload))
	if _, err := s.conn.Write(frame); err != nil {
		s.logger.Debug("debugger socket write failed, destroying socket", "err", err)
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("writing debugger frame: %w", err)
	}
	return nil
}

// SetScriptSource sends a Debugger.setScriptSource message for one
// changed script file (spec.md §4.7, iOS scripts-only fast path).
func (s *DebuggerSocket) SetScriptSource(ctx context.Context, scriptID, source string) error {
	return s.send(ctx, map[string]any{
		"method": "Debugger.setScriptSource",
		"params": map[string]string{
			"scriptId":     scriptID,
			"scriptSource": source,
		},
	})
}

// Reload sends a single Page.reload, the terminal message of a
// scripts-only live-edit refresh.
func (s *DebuggerSocket) Reload(ctx context.Context) error {
	return s.send(ctx, map[string]any{"method": "Page.reload"})
}

// encodeFrame produces one wire frame: a 4-byte big-endian byte length
// followed by the UTF-16-LE encoding of payload (spec.md §6). The
// length counts UTF-16-LE bytes, not the UTF-8 source length.
func encodeFrame(payload string) []byte {
	units := utf16.Encode([]rune(payload))
	body := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(body[i*2:], u)
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// decodeFrame reads one wire frame from r and returns the decoded JSON
// text, used by tests to round-trip encodeFrame.
func decodeFrame(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("reading frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", fmt.Errorf("reading frame body: %w", err)
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(body[i*2:])
	}
	return string(utf16.Decode(units)), nil
}
