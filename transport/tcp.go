//go:build !wasm

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/quaydb/pgxec/wire"
)

// TCPOptions configures a TCPTransport. Grounded on the teacher's
// TCPTransportOptions (transport/tcp/transport.go), stripped of the pooling
// fields which belong to pgxec's own connection pool rather than the
// transport layer.
type TCPOptions struct {
	Address string
	Timeout time.Duration

	UseTLS     bool
	CertPath   string
	KeyPath    string
	SkipVerify bool

	// AuxiliaryAuth, when set, is used to authenticate the secondary
	// connection opened by OpenAuxiliary (cancel delivery, §4.6/§6).
	AuxiliaryAuth *AuthNegotiator
}

// TCPTransport implements Transport over a single net.Conn, optionally
// TLS-wrapped. Grounded on the teacher's tcpConnection/TCPTransport
// (transport/tcp/transport.go) and client/connection.go's deadline pattern,
// collapsed to one connection per Transport value since connection pooling
// at the client level (pgxec.Pool) owns the fan-out.
type TCPTransport struct {
	opts   TCPOptions
	conn   net.Conn
	mu     sync.RWMutex
	alive  bool
	lastAt time.Time
}

// DialTCP opens a TCPTransport to opts.Address.
func DialTCP(ctx context.Context, opts TCPOptions) (*TCPTransport, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("transport: address is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	conn, err := dialWithDeadline(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &TCPTransport{
		opts:   opts,
		conn:   conn,
		alive:  true,
		lastAt: time.Now(),
	}, nil
}

func dialWithDeadline(ctx context.Context, opts TCPOptions) (net.Conn, error) {
	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", opts.Address, err)
	}

	if opts.UseTLS {
		tlsConfig, err := buildTLSConfig(opts)
		if err != nil {
			conn.Close()
			return nil, err
		}
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("transport: TLS handshake with %s: %w", opts.Address, err)
		}
		return tlsConn, nil
	}
	return conn, nil
}

func buildTLSConfig(opts TCPOptions) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: opts.SkipVerify}

	serverName := opts.Address
	if idx := strings.Index(opts.Address, ":"); idx >= 0 {
		serverName = opts.Address[:idx]
	}
	cfg.ServerName = serverName

	if opts.CertPath != "" && opts.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("transport: load TLS keypair %s/%s: %w", opts.CertPath, opts.KeyPath, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Send writes one already-framed message.
func (t *TCPTransport) Send(ctx context.Context, frameBytes []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	if _, err := t.conn.Write(frameBytes); err != nil {
		t.markDead()
		return fmt.Errorf("transport: send: %w", err)
	}
	t.touch()
	return nil
}

// Recv reads the next framed backend message off the wire.
func (t *TCPTransport) Recv(ctx context.Context) (wire.Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return wire.Frame{}, err
		}
	}
	f, err := wire.ReadFrame(t.conn)
	if err != nil {
		t.markDead()
		return wire.Frame{}, fmt.Errorf("transport: recv: %w", err)
	}
	t.touch()
	return f, nil
}

// OpenAuxiliary dials a fresh connection to the same address for
// out-of-band cancel delivery and authenticates it via AuxiliaryAuth, if
// configured (§4.6, §6).
func (t *TCPTransport) OpenAuxiliary(ctx context.Context) (Transport, error) {
	conn, err := dialWithDeadline(ctx, t.opts)
	if err != nil {
		return nil, err
	}
	aux := &TCPTransport{opts: t.opts, conn: conn, alive: true, lastAt: time.Now()}
	if t.opts.AuxiliaryAuth != nil {
		if err := t.opts.AuxiliaryAuth.Negotiate(ctx, aux); err != nil {
			aux.Close()
			return nil, fmt.Errorf("transport: auxiliary auth: %w", err)
		}
	}
	return aux, nil
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()
	return t.conn.Close()
}

// RemoteAddr reports the remote endpoint.
func (t *TCPTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// IsAlive reports whether the last Send/Recv succeeded.
func (t *TCPTransport) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// LastActivity reports the time of the last successful Send/Recv.
func (t *TCPTransport) LastActivity() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastAt
}

func (t *TCPTransport) markDead() {
	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()
}

func (t *TCPTransport) touch() {
	t.mu.Lock()
	t.lastAt = time.Now()
	t.mu.Unlock()
}

// tcpDialer implements Dialer over DialTCP.
type tcpDialer struct {
	base TCPOptions
}

// NewDialer returns a Dialer that opens TCPTransports, using base as the
// template for TLS/auth options; Address is overridden per Dial call.
func NewDialer(base TCPOptions) Dialer {
	return &tcpDialer{base: base}
}

func (d *tcpDialer) Dial(ctx context.Context, address string) (Transport, error) {
	opts := d.base
	opts.Address = address
	return DialTCP(ctx, opts)
}
