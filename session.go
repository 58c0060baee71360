package tftp

import (
	"net"
	"os"
	"time"

	"golang.org/x/net/context"

	"aqwari.net/net/tftp/internal/util"
	"aqwari.net/net/tftp/tftpproto"
)

// A TFTP session is a single file transfer between the server and
// one client. The initial request arrives on the well-known port;
// everything after it happens between two ephemeral ports, one per
// side, so that concurrent transfers never share a socket. The
// goroutines below own that socket, the open file (through the
// ReadSession/WriteSession state machines), and the path string
// handed over by the listener, and release all three on every exit
// path.

// session bundles what the runner loops need: the ephemeral socket,
// the established peer, and scratch buffers for one inbound and one
// outbound datagram.
type session struct {
	srv  *Server
	conn *net.UDPConn
	peer *net.UDPAddr
	sbuf []byte
	rbuf []byte
}

// newSession binds the ephemeral session socket on the address
// family of the peer.
func (srv *Server) newSession(peer *net.UDPAddr) (*session, error) {
	conn, err := net.ListenUDP(udpNetwork(peer), nil)
	if err != nil {
		return nil, err
	}
	return &session{
		srv:  srv,
		conn: conn,
		peer: peer,
		sbuf: make([]byte, tftpproto.MaxPacketSize),
		rbuf: make([]byte, tftpproto.MaxPacketSize),
	}, nil
}

func (s *session) close() { s.conn.Close() }

// sendErr reports a terminal condition to addr. Failures are
// ignored; an error packet is a courtesy.
func (s *session) sendErr(addr *net.UDPAddr, code tftpproto.ErrCode, msg string) {
	pkt, _, err := tftpproto.NewErr(s.sbuf, code, msg)
	if err != nil {
		return
	}
	s.conn.WriteToUDP(pkt, addr)
}

// recv waits for the next datagram from the established peer. A
// datagram from any other source carries a foreign transfer ID; it
// is answered with an error packet and otherwise ignored, without
// extending the deadline of the packet being waited for.
func (s *session) recv() (tftpproto.Packet, error) {
	// one deadline for the whole wait; a stream of foreign or
	// malformed datagrams must not push back the retransmission
	// clock
	s.conn.SetReadDeadline(time.Now().Add(s.srv.timeout()))
	for {
		n, from, err := s.conn.ReadFromUDP(s.rbuf)
		if err != nil {
			return nil, err
		}
		if !from.IP.Equal(s.peer.IP) || from.Port != s.peer.Port {
			s.srv.debugf("tftp: %s: datagram from %s on session socket", s.peer, from)
			s.sendErr(from, tftpproto.UnknownTID, "Unknown transfer ID")
			continue
		}
		pkt, err := tftpproto.Parse(s.rbuf[:n])
		if err != nil {
			// not enough to kill the transfer; wait for a
			// parseable packet or the deadline
			s.srv.logf("tftp: %s: malformed datagram: %v", s.peer, err)
			continue
		}
		return pkt, nil
	}
}

// serveRead runs a read transfer: the client download of one file.
// The session sends each DATA packet and waits for its ACK,
// retransmitting the outstanding packet whenever the receive
// deadline expires.
func (srv *Server) serveRead(cx context.Context, path string) {
	peer := peerFromContext(cx)
	s, err := srv.newSession(peer)
	if err != nil {
		srv.logf("tftp: cannot open session socket for %s: %v", peer, err)
		return
	}
	defer s.close()

	rs, err := OpenReadSession(path)
	if err != nil {
		srv.logf("tftp: %s: %v", peer, err)
		s.sendErr(peer, tftpproto.FileNotFound, "File not found")
		return
	}
	defer rs.Close()

	try := 0
	for {
		pkt, err := rs.NextPacket(s.sbuf)
		if err != nil {
			srv.logf("tftp: %s: reading %s: %v", peer, path, err)
			return
		}
		if pkt == nil {
			srv.debugf("tftp: %s: read transfer of %s complete", peer, path)
			return
		}
		block := pkt.Block()
		if _, err := s.conn.WriteToUDP(pkt, peer); err != nil {
			srv.logf("tftp: %s: %v", peer, err)
			return
		}
		// pkt is a view into sbuf and recv may scribble on it (an
		// unknown-TID reply shares the buffer); it is rebuilt by
		// NextPacket on the next pass
	wait:
		reply, err := s.recv()
		if err != nil {
			if !util.IsTimeout(err) {
				srv.logf("tftp: %s: %v", peer, err)
				return
			}
			try++
			if srv.MaxRetries > 0 && try > srv.MaxRetries {
				srv.logf("tftp: %s: abandoning read transfer of %s after %d retries", peer, path, srv.MaxRetries)
				return
			}
			srv.logf("tftp: %s: timeout waiting for ACK %d, retransmitting", peer, block)
			continue
		}
		switch m := reply.(type) {
		case tftpproto.Ack:
			if rs.HandleAck(m.Block()) {
				try = 0
			} else {
				// duplicate or stray ack; answering it would start
				// the sorcerer's-apprentice exchange
				goto wait
			}
		case tftpproto.Err:
			srv.logf("tftp: %s: peer aborted read transfer: %s", peer, m)
			return
		default:
			// a DATA or a repeated request mid-transfer; keep
			// waiting for the ACK
			goto wait
		}
	}
}

// serveWrite runs a write transfer: the client upload of one file.
// The request is accepted with an ACK of block 0; after that the
// session acknowledges each DATA packet in lock step, retransmitting
// its latest ACK whenever the receive deadline expires.
func (srv *Server) serveWrite(cx context.Context, path string) {
	peer := peerFromContext(cx)
	s, err := srv.newSession(peer)
	if err != nil {
		srv.logf("tftp: cannot open session socket for %s: %v", peer, err)
		return
	}
	defer s.close()

	ws, err := CreateWriteSession(path)
	if err != nil {
		srv.logf("tftp: %s: %v", peer, err)
		if os.IsExist(err) {
			s.sendErr(peer, tftpproto.FileAlreadyExists, "File already exists")
		} else {
			s.sendErr(peer, tftpproto.AccessViolation, "Could not create file")
		}
		return
	}
	defer ws.Close()

	ack, err := ws.FirstAck(s.sbuf)
	if err != nil {
		srv.logf("tftp: %s: %v", peer, err)
		return
	}
	if _, err := s.conn.WriteToUDP(ack, peer); err != nil {
		srv.logf("tftp: %s: %v", peer, err)
		return
	}

	try := 0
	for !ws.Done() {
		pkt, err := s.recv()
		if err != nil {
			if !util.IsTimeout(err) {
				srv.logf("tftp: %s: %v", peer, err)
				return
			}
			try++
			if srv.MaxRetries > 0 && try > srv.MaxRetries {
				srv.logf("tftp: %s: abandoning write transfer of %s after %d retries", peer, path, srv.MaxRetries)
				return
			}
			srv.logf("tftp: %s: timeout waiting for DATA, retransmitting ACK", peer)
			if _, err := s.conn.WriteToUDP(ws.LastAck(), peer); err != nil {
				srv.logf("tftp: %s: %v", peer, err)
				return
			}
			continue
		}
		switch m := pkt.(type) {
		case tftpproto.Data:
			ack, err := ws.HandleData(m, s.sbuf)
			if err != nil {
				// disk failure; the peer learns of it through
				// silence
				srv.logf("tftp: %s: writing %s: %v", peer, path, err)
				return
			}
			if ack == nil {
				continue
			}
			if _, err := s.conn.WriteToUDP(ack, peer); err != nil {
				srv.logf("tftp: %s: %v", peer, err)
				return
			}
			try = 0
		case tftpproto.Err:
			srv.logf("tftp: %s: peer aborted write transfer: %s", peer, m)
			return
		default:
			// stray ACK or request on an established write
			// transfer; ignore
		}
	}
	srv.debugf("tftp: %s: write transfer of %s complete", peer, path)
}
