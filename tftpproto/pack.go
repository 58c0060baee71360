package tftpproto

import "encoding/binary"

// Shorthand for parsing numbers. All integers in a TFTP message are
// transmitted big-endian.
var guint16 = binary.BigEndian.Uint16

// bit-packing functions. caller is expected to check that the backing
// slice has enough space for whatever they're writing; these functions
// extend their argument slice by the amount of data encoded.

func puint16(b []byte, v uint16) []byte {
	binary.BigEndian.PutUint16(b[len(b):len(b)+2], v)
	return b[:len(b)+2]
}

func pbytes(b []byte, p []byte) []byte {
	copy(b[len(b):len(b)+len(p)], p)
	return b[:len(b)+len(p)]
}

// pstringz encodes a NUL-terminated string.
func pstringz(b []byte, s string) []byte {
	copy(b[len(b):len(b)+len(s)], s)
	b = b[:len(b)+len(s)]
	b = b[:len(b)+1]
	b[len(b)-1] = 0
	return b
}

func pheader(buf []byte, op uint16) []byte {
	return puint16(buf[:0], op)
}
