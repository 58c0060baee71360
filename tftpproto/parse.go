package tftpproto

import "bytes"

// Design goals of the parser:
//   - no allocation; parsed packets are views into the input
//   - resilient to malicious input (truncated or unterminated fields)
//   - tolerant where RFC 1350 requires it (unknown error codes)

// Parse reads the single TFTP message stored in buf. The returned
// Packet is a view into buf; the caller must keep buf alive and
// unmodified for as long as the Packet is in use.
//
// Parse validates the fields required by the message type: requests
// must carry a NUL-terminated filename and a recognized transfer
// mode, and error packets a NUL-terminated message. The payload of a
// DATA packet is not bounded by Parse; the transfer layer limits it
// by receiving into a buffer of MaxPacketSize bytes.
func Parse(buf []byte) (Packet, error) {
	if len(buf) < minPacketSize {
		return nil, ErrInvalidPacket
	}
	switch guint16(buf[:2]) {
	case opRrq:
		if err := verifyRequest(buf); err != nil {
			return nil, err
		}
		return Rrq(buf), nil
	case opWrq:
		if err := verifyRequest(buf); err != nil {
			return nil, err
		}
		return Wrq(buf), nil
	case opData:
		if len(buf) < hdrSize {
			return nil, ErrInvalidPacket
		}
		return Data(buf), nil
	case opAck:
		if len(buf) < hdrSize {
			return nil, ErrInvalidPacket
		}
		return Ack(buf), nil
	case opErr:
		if len(buf) < hdrSize {
			return nil, ErrInvalidPacket
		}
		if bytes.IndexByte(buf[4:], 0) < 0 {
			return nil, ErrInvalidPacket
		}
		return Err(buf), nil
	}
	return nil, ErrInvalidOpcode
}

// verifyRequest checks the body of an RRQ or WRQ message:
// filename[n] 0 mode[n] 0
func verifyRequest(buf []byte) error {
	i := bytes.IndexByte(buf[2:], 0)
	if i < 0 {
		return ErrInvalidPacket
	}
	rest := buf[2+i+1:]
	j := bytes.IndexByte(rest, 0)
	if j < 0 {
		return ErrInvalidPacket
	}
	_, err := parseMode(rest[:j])
	return err
}
