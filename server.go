package tftp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/context"

	"aqwari.net/net/tftp/internal/util"
	"aqwari.net/net/tftp/tftpproto"
	"aqwari.net/retry"
)

// Types implementing the Logger interface can receive
// diagnostic information during a Server's operation.
// The Logger interface is implemented by *log.Logger.
type Logger interface {
	Output(calldepth int, s string) error
}

// How long the listener blocks in a single receive before checking
// whether Stop has been called.
const pollInterval = 100 * time.Millisecond

// DefaultTimeout is the receive timeout on session sockets, and the
// interval at which an unanswered packet is retransmitted.
const DefaultTimeout = 2 * time.Second

// A Server defines parameters for running a TFTP server. The zero
// value of a Server is usable, and will serve the current directory
// on the default port.
type Server struct {
	Addr string // UDP address to listen on, ":6969" if empty.
	Root string // Directory served, the working directory if empty.

	// Receive timeout on session sockets. An unanswered DATA or ACK
	// is retransmitted each time this expires. DefaultTimeout if zero.
	Timeout time.Duration

	// Retransmissions of a single packet before the session is
	// abandoned. If zero, a session retransmits indefinitely and
	// only ends on progress or on an error from the peer. An
	// abandoned session is logged; no error packet is sent, the
	// peer is assumed gone.
	MaxRetries int

	// If not nil, ErrorLog will be used to log unexpected errors
	// reading from the network and session-fatal conditions.
	// TraceLog, if not nil, will receive detailed per-request and
	// per-session information.
	ErrorLog, TraceLog Logger

	// set once by Stop, polled by the listener between receives;
	// sync/atomic gives the read-acquire/write-release pairing
	stopped int32

	mu   sync.Mutex
	done chan struct{}
}

func (srv *Server) debugf(format string, v ...interface{}) {
	if srv.TraceLog != nil {
		srv.TraceLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func (srv *Server) logf(format string, v ...interface{}) {
	if srv.ErrorLog != nil {
		srv.ErrorLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func (srv *Server) timeout() time.Duration {
	if srv.Timeout == 0 {
		return DefaultTimeout
	}
	return srv.Timeout
}

func (srv *Server) doneChan() chan struct{} {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.done == nil {
		srv.done = make(chan struct{})
	}
	return srv.done
}

// Serve reads requests from conn, creating a new service goroutine
// for each read or write request. Each service goroutine opens an
// ephemeral UDP socket and runs its transfer to completion. Serve
// returns after Stop or Shutdown is called, or on an unrecoverable
// error reading from conn. Serve closes conn before returning.
func (srv *Server) Serve(conn *net.UDPConn) error {
	backoff := retry.Exponential(time.Millisecond).Max(time.Second)
	try := 0

	done := srv.doneChan()
	defer close(done)
	defer conn.Close()

	// requests are small; read a little more than a maximum
	// datagram so that oversized input is parsed and logged rather
	// than silently truncated
	buf := make([]byte, 1024)
	for atomic.LoadInt32(&srv.stopped) == 0 {
		conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if util.IsTimeout(err) {
				continue
			}
			if util.IsTempErr(err) {
				try++
				srv.logf("tftp: receive error: %v; retrying in %v", err, backoff(try))
				time.Sleep(backoff(try))
				continue
			}
			return err
		}
		try = 0

		pkt, err := tftpproto.Parse(buf[:n])
		if err != nil {
			srv.logf("tftp: dropping malformed datagram from %s: %v", addr, err)
			continue
		}
		switch m := pkt.(type) {
		case tftpproto.Rrq:
			srv.debugf("read request for %q (%s) from %s", m.Filename(), m.Mode(), addr)
			srv.spawn(addr, string(m.Filename()), srv.serveRead)
		case tftpproto.Wrq:
			srv.debugf("write request for %q (%s) from %s", m.Filename(), m.Mode(), addr)
			srv.spawn(addr, string(m.Filename()), srv.serveWrite)
		default:
			// DATA, ACK or ERROR to the well-known port belongs to
			// no transfer
			srv.logf("tftp: %s from %s outside any session", pkt, addr)
			go srv.reject(addr, tftpproto.IllegalOperation, "Illegal TFTP operation")
		}
	}
	return nil
}

// spawn resolves the requested filename under the server root and
// hands the request to a new session goroutine. The joined path
// string and the client address, carried in the session context, are
// owned by the session from here on.
func (srv *Server) spawn(addr *net.UDPAddr, name string, run func(context.Context, string)) {
	path, err := srv.resolve(name)
	if err != nil {
		srv.logf("tftp: rejecting %q from %s: %v", name, addr, err)
		go srv.reject(addr, tftpproto.AccessViolation, "Access violation")
		return
	}
	cx := context.WithValue(context.Background(), peerKey{}, addr)
	go run(cx, path)
}

// reject answers a request with an error packet sent from a one-shot
// ephemeral socket.
func (srv *Server) reject(addr *net.UDPAddr, code tftpproto.ErrCode, msg string) {
	c, err := net.DialUDP(udpNetwork(addr), nil, addr)
	if err != nil {
		srv.logf("tftp: cannot answer %s: %v", addr, err)
		return
	}
	defer c.Close()
	buf := make([]byte, 4+len(msg)+1)
	pkt, _, err := tftpproto.NewErr(buf, code, msg)
	if err != nil {
		srv.logf("tftp: cannot answer %s: %v", addr, err)
		return
	}
	c.Write(pkt)
}

// ListenAndServe listens on the UDP network address srv.Addr and
// then calls Serve to handle requests. If srv.Addr is blank, ":6969"
// is used.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":6969"
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	return srv.Serve(conn)
}

// ListenAndServe listens on the specified UDP address and serves the
// given directory.
func ListenAndServe(addr, root string) error {
	srv := Server{Addr: addr, Root: root}
	return srv.ListenAndServe()
}

// Stop signals the listener to exit. Transfers already in flight are
// not interrupted; they run to completion or time out against their
// own peers. Stop does not wait for the listener to exit; use
// Shutdown for that.
func (srv *Server) Stop() {
	atomic.StoreInt32(&srv.stopped, 1)
}

// Shutdown stops the listener and waits for it to exit. The wait is
// bounded by ctx; sessions in flight are not waited for.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.Stop()
	select {
	case <-srv.doneChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type peerKey struct{}

// peerFromContext recovers the client address the listener stored in
// a session context.
func peerFromContext(cx context.Context) *net.UDPAddr {
	peer, _ := cx.Value(peerKey{}).(*net.UDPAddr)
	return peer
}

// udpNetwork selects the network name matching the peer's address
// family, so that a session socket is bound to the same family as
// the client.
func udpNetwork(addr *net.UDPAddr) string {
	if addr.IP.To4() != nil {
		return "udp4"
	}
	return "udp6"
}
