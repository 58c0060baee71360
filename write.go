package tftp

import (
	"os"

	"aqwari.net/net/tftp/tftpproto"
)

// A WriteSession is the server half of a single file upload. It
// consumes DATA packets in lock step, appends their payloads to a
// newly created file, and produces the ACK to send in reply. Like
// ReadSession, it performs no network I/O; the session runner relays
// packets for it.
//
// A WriteSession is not safe for concurrent use.
type WriteSession struct {
	f *os.File

	// block number the session is waiting for; the first DATA
	// packet of a transfer carries block 1
	expected uint16

	done bool

	// wire form of the most recent ACK sent, retransmitted
	// verbatim when the peer goes quiet
	lastAck []byte
}

// CreateWriteSession creates the named file and prepares to receive
// its contents. The file is created exclusively; if it already
// exists, the error satisfies os.IsExist and the request should be
// refused with code FileAlreadyExists.
func CreateWriteSession(path string) (*WriteSession, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return &WriteSession{
		f:        f,
		expected: 1,
		lastAck:  make([]byte, 0, 4),
	}, nil
}

// FirstAck builds the ACK of block 0 that accepts the write request,
// and records it for retransmission.
func (s *WriteSession) FirstAck(buf []byte) (tftpproto.Ack, error) {
	ack, _, err := tftpproto.NewAck(buf, 0)
	if err != nil {
		return nil, err
	}
	s.lastAck = append(s.lastAck[:0], ack...)
	return ack, nil
}

// HandleData consumes one DATA packet, writing the reply ACK, if any,
// into buf.
//
// The expected block is written to the file and acknowledged; a
// payload shorter than a full block completes the session. An
// already-accepted block is acknowledged again without touching the
// file, so that a duplicated DATA packet cannot trigger the
// sorcerer's-apprentice exchange. A block from the future is dropped
// (nil, nil); the peer retransmits the missing block on its own
// timeout.
//
// A write failure is returned as-is and is not retried; the runner
// abandons the session and lets the peer time out.
func (s *WriteSession) HandleData(d tftpproto.Data, buf []byte) (tftpproto.Ack, error) {
	block := d.Block()
	switch {
	case block == s.expected:
		payload := d.Payload()
		if _, err := s.f.Write(payload); err != nil {
			return nil, err
		}
		if len(payload) < tftpproto.BlockSize {
			s.done = true
		}
		s.expected++
	case block < s.expected:
		// duplicate of a block already on disk; re-ack, don't rewrite
	default:
		return nil, nil
	}
	ack, _, err := tftpproto.NewAck(buf, block)
	if err != nil {
		return nil, err
	}
	s.lastAck = append(s.lastAck[:0], ack...)
	return ack, nil
}

// LastAck returns the wire form of the most recent ACK produced by
// the session, for retransmission when the peer goes quiet. The
// returned slice is owned by the session.
func (s *WriteSession) LastAck() []byte { return s.lastAck }

// Done reports whether the final (short) block has been received and
// acknowledged.
func (s *WriteSession) Done() bool { return s.done }

// Close releases the file handle owned by the session.
func (s *WriteSession) Close() error { return s.f.Close() }
