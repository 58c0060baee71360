package tftp

import (
	"io"
	"os"

	"aqwari.net/net/tftp/tftpproto"
)

// A ReadSession is the server half of a single file download. It
// produces the sequence of DATA packets for one file and advances
// when the matching ACK arrives. A ReadSession performs no network
// I/O of its own; it is driven by the session runner, which relays
// packets between it and the client.
//
// A ReadSession is not safe for concurrent use.
type ReadSession struct {
	f *os.File

	// block number of the next DATA packet to produce; the first
	// block of a transfer is block 1
	next uint16

	// current block, loaded lazily so that a retransmission does
	// not reread the file
	buf    [tftpproto.BlockSize]byte
	n      int
	loaded bool

	// eof records that the current block is the final one
	eof  bool
	done bool
}

// OpenReadSession opens the named file and prepares to serve its
// contents, beginning with block 1.
func OpenReadSession(path string) (*ReadSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &ReadSession{f: f, next: 1}, nil
}

// NextPacket builds the DATA packet for the current block into buf.
// The same packet is returned again on successive calls until the
// block is acknowledged through HandleAck; this is what the runner
// retransmits on timeout. Once the final block has been acknowledged,
// NextPacket returns nil.
//
// The returned packet is a view into buf, which holds a copy of the
// block; it is valid only until buf is reused, such as by the next
// call to NextPacket with the same buffer.
func (s *ReadSession) NextPacket(buf []byte) (tftpproto.Data, error) {
	if s.done {
		return nil, nil
	}
	if !s.loaded {
		n, err := io.ReadFull(s.f, s.buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		s.n = n
		s.loaded = true
		// a short read, including an empty one, marks the final
		// block; a file of exactly k*BlockSize bytes ends with an
		// empty block k+1
		s.eof = n < tftpproto.BlockSize
	}
	pkt, _, err := tftpproto.NewData(buf, s.next, s.buf[:s.n])
	return pkt, err
}

// HandleAck advances the session if block acknowledges the
// outstanding DATA packet. It reports whether the session state
// changed; a duplicate, future, or stray block number leaves the
// session untouched, and the runner either retransmits on its next
// timeout or keeps waiting.
func (s *ReadSession) HandleAck(block uint16) bool {
	if block != s.next {
		return false
	}
	if s.eof {
		s.done = true
		return true
	}
	s.next++ // wraps to 0 after block 65535, per the wire format
	s.loaded = false
	return true
}

// Done reports whether the final block has been acknowledged.
func (s *ReadSession) Done() bool { return s.done }

// Close releases the file handle owned by the session.
func (s *ReadSession) Close() error { return s.f.Close() }
