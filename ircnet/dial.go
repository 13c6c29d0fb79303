// Package ircnet provides the opaque bidirectional byte stream the
// session state machine reads and writes: a narrow seam around the
// TLS connection, not a protocol layer.
//
// crypto/tls from the standard library is used directly: no TLS
// library appears anywhere in the example pack, so there is no
// ecosystem alternative to adopt instead.
package ircnet

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
)

// Stream is the minimal interface the session state machine needs: a
// readable, writable, closable byte stream. *tls.Conn satisfies it.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// Fd returns the underlying file descriptor, for the scheduling
	// helper to poll on.
	Fd() int
}

// tlsStream adapts a *net.TCPConn-backed *tls.Conn to Stream by
// retaining the raw file descriptor alongside the TLS wrapper. TLS
// records don't map 1:1 onto socket readability, but for this system's
// purposes ("is there more to read soon") polling the raw fd is
// sufficient: a spurious wake just costs one extra blocking Read.
type tlsStream struct {
	conn *tls.Conn
	// fdFile holds the duplicated descriptor TCPConn.File() returns,
	// kept open for the lifetime of the stream purely so Fd() stays
	// valid for polling; actual I/O goes through conn, not fdFile.
	fdFile *os.File
}

func (s *tlsStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *tlsStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *tlsStream) Close() error {
	fileErr := s.fdFile.Close()
	connErr := s.conn.Close()
	if connErr != nil {
		return connErr
	}
	return fileErr
}
func (s *tlsStream) Fd() int { return int(s.fdFile.Fd()) }

// Dial opens a TLS connection to addr ("host:port"), performing the
// handshake within ctx's deadline if one is set.
func Dial(ctx context.Context, addr string) (Stream, error) {
	return DialWithConfig(ctx, addr, &tls.Config{ServerName: hostOf(addr)})
}

// DialWithConfig is Dial with caller-supplied TLS configuration, split
// out so tests can dial a loopback server trusting a self-signed cert
// without touching the real-server code path.
func DialWithConfig(ctx context.Context, addr string, cfg *tls.Config) (Stream, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ircnet: dial %s: %w", addr, err)
	}

	tcpConn, ok := rawConn.(*net.TCPConn)
	if !ok {
		rawConn.Close()
		return nil, fmt.Errorf("ircnet: dial %s: unexpected connection type %T", addr, rawConn)
	}
	file, err := tcpConn.File()
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("ircnet: dial %s: extract fd: %w", addr, err)
	}

	tlsConn := tls.Client(rawConn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		file.Close()
		rawConn.Close()
		return nil, fmt.Errorf("ircnet: TLS handshake with %s: %w", addr, err)
	}

	return &tlsStream{conn: tlsConn, fdFile: file}, nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
