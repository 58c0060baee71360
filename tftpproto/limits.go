package tftpproto

// BlockSize is the fixed size, in bytes, of the data block carried by
// a DATA packet. Every block of a transfer is exactly BlockSize bytes
// long except the final block, which is shorter (possibly empty) and
// signals the end of the transfer.
const BlockSize = 512

// MaxPacketSize is the size, in bytes, of the largest datagram a
// conforming endpoint will produce: a DATA packet carrying a full
// block, preceded by the 2-byte opcode and 2-byte block number.
const MaxPacketSize = 4 + BlockSize

// Smallest possible message (a bare opcode)
const minPacketSize = 2

// Size of the fixed-width header of DATA, ACK and ERROR messages:
// opcode[2] followed by a block number or error code.
const hdrSize = 4
