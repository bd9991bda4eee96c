package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// sniffLimit caps how far into a connection the detector looks for an HTTP
// request head before treating the stream as raw PCM.
const sniffLimit = 4096

// sniffHTTP peeks at a fresh connection without consuming it and reports
// whether the client is speaking HTTP. Anything else is a raw PCM stream.
func sniffHTTP(br *bufio.Reader) (bool, error) {
	prefix, err := br.Peek(4)
	if len(prefix) < 4 {
		// stream ended before four bytes arrived; nothing to upgrade
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	if !bytes.Equal(prefix, []byte("GET ")) {
		return false, nil
	}
	for n := 64; ; n *= 2 {
		if n > sniffLimit {
			n = sniffLimit
		}
		data, err := br.Peek(n)
		if bytes.Contains(data, []byte("\r\n\r\n")) {
			return true, nil
		}
		if err != nil || n == sniffLimit {
			// header never completed inside the window; treat as audio
			return false, nil
		}
	}
}

// rawResponseWriter adapts a hijacked net.Conn to http.ResponseWriter so the
// websocket upgrader can run outside an http.Server. The buffered reader must
// be the one the request head was parsed from.
type rawResponseWriter struct {
	conn        net.Conn
	br          *bufio.Reader
	header      http.Header
	wroteHeader bool
}

func newRawResponseWriter(conn net.Conn, br *bufio.Reader) *rawResponseWriter {
	return &rawResponseWriter{conn: conn, br: br, header: make(http.Header)}
}

func (w *rawResponseWriter) Header() http.Header {
	return w.header
}

func (w *rawResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	fmt.Fprintf(w.conn, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code))
	w.header.Write(w.conn)
	io.WriteString(w.conn, "\r\n")
}

func (w *rawResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.conn.Write(b)
}

func (w *rawResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, bufio.NewReadWriter(w.br, bufio.NewWriter(w.conn)), nil
}

// upgradeWebSocket parses the request head already buffered on br and runs
// the websocket handshake on the raw connection. A request that is not a
// well-formed upgrade gets an HTTP error response and a nil conn.
func upgradeWebSocket(upgrader *websocket.Upgrader, conn net.Conn, br *bufio.Reader) (*websocket.Conn, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("parse http request: %w", err)
	}
	wsConn, err := upgrader.Upgrade(newRawResponseWriter(conn, br), req, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return wsConn, nil
}
