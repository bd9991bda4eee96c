package server

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-stt/internal/protocol"
)

// transport abstracts the two wire flavors a session can sit on. ReadAudio
// blocks until a PCM chunk arrives and returns io.EOF on a clean client
// close. Writes happen from a single goroutine.
type transport interface {
	// Name labels the flavor in logs and metrics.
	Name() string
	ReadAudio() ([]byte, error)
	WriteRecord(rec protocol.Record) error
	// WriteFinal emits the end-of-stream record. Line mode skips an empty
	// final batch; WebSocket always sends one so clients see the close
	// coming.
	WriteFinal(rec protocol.Record) error
	WriteError(kind string) error
	// Ping sends a keepalive where the protocol has one.
	Ping() error
	// CloseClean performs the protocol's orderly shutdown.
	CloseClean() error
	Close() error
}

const readChunkSize = 32 * 1024

// lineTransport is the raw TCP flavor: PCM in, one UTF-8 line per record out.
type lineTransport struct {
	conn     net.Conn
	reader   *bufio.Reader
	lastLine string
}

func newLineTransport(conn net.Conn, reader *bufio.Reader) *lineTransport {
	return &lineTransport{conn: conn, reader: reader}
}

func (t *lineTransport) Name() string {
	return "tcp"
}

func (t *lineTransport) ReadAudio() ([]byte, error) {
	buf := make([]byte, readChunkSize)
	n, err := t.reader.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (t *lineTransport) WriteRecord(rec protocol.Record) error {
	line := fmt.Sprintf("%d %d %s\n", rec.Start, rec.End, rec.Text)
	// never send the same line twice; duplicated lines confuse downstream
	// text-flow consumers
	if line == t.lastLine {
		return nil
	}
	if _, err := t.conn.Write([]byte(line)); err != nil {
		return err
	}
	t.lastLine = line
	return nil
}

func (t *lineTransport) WriteFinal(rec protocol.Record) error {
	if rec.Text == "" {
		return nil
	}
	return t.WriteRecord(rec)
}

func (t *lineTransport) WriteError(kind string) error {
	_, err := fmt.Fprintf(t.conn, "# error %s\n", kind)
	return err
}

func (t *lineTransport) Ping() error {
	return nil
}

func (t *lineTransport) CloseClean() error {
	return t.conn.Close()
}

func (t *lineTransport) Close() error {
	return t.conn.Close()
}

// wsTransport is the WebSocket flavor: binary PCM frames in, JSON text
// messages out.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Name() string {
	return "websocket"
}

func (t *wsTransport) ReadAudio() ([]byte, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.BinaryMessage {
			return data, nil
		}
		// text frames carry no audio; ignore them
	}
}

func (t *wsTransport) WriteRecord(rec protocol.Record) error {
	return t.conn.WriteJSON(rec)
}

func (t *wsTransport) WriteFinal(rec protocol.Record) error {
	return t.conn.WriteJSON(rec)
}

func (t *wsTransport) WriteError(kind string) error {
	return t.conn.WriteJSON(protocol.ErrorRecord{Error: kind})
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (t *wsTransport) CloseClean() error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
