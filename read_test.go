package tftp

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"aqwari.net/net/tftp/tftpproto"
)

func tempFile(t *testing.T, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(path, contents, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// drain drives a read session to completion as a well-behaved client
// would, returning the payload of every DATA packet produced.
func drain(t *testing.T, s *ReadSession) [][]byte {
	t.Helper()
	buf := make([]byte, tftpproto.MaxPacketSize)
	var blocks [][]byte
	for i := 0; ; i++ {
		pkt, err := s.NextPacket(buf)
		if err != nil {
			t.Fatal(err)
		}
		if pkt == nil {
			return blocks
		}
		if want := uint16(i + 1); pkt.Block() != want {
			t.Fatalf("block %d numbered %d, want %d", i, pkt.Block(), want)
		}
		blocks = append(blocks, append([]byte(nil), pkt.Payload()...))
		if !s.HandleAck(pkt.Block()) {
			t.Fatalf("ack of block %d not accepted", pkt.Block())
		}
		if i > 1<<16 {
			t.Fatal("session never finished")
		}
	}
}

// A file of N bytes produces ceil(N/512) blocks, plus a trailing
// empty block when N is an exact multiple of 512; only the final
// block is short.
func TestReadBlockCount(t *testing.T) {
	sizes := []struct {
		n, blocks int
	}{
		{0, 1},
		{1, 1},
		{17, 1},
		{511, 1},
		{512, 2},
		{513, 2},
		{1024, 3},
		{1200, 3},
	}
	for _, tt := range sizes {
		contents := pattern(tt.n)
		s, err := OpenReadSession(tempFile(t, "f.bin", contents))
		if err != nil {
			t.Fatal(err)
		}
		blocks := drain(t, s)
		s.Close()

		if len(blocks) != tt.blocks {
			t.Errorf("size %d: got %d blocks, want %d", tt.n, len(blocks), tt.blocks)
		}
		var joined []byte
		for i, b := range blocks {
			if i < len(blocks)-1 && len(b) != tftpproto.BlockSize {
				t.Errorf("size %d: block %d is %d bytes", tt.n, i+1, len(b))
			}
			joined = append(joined, b...)
		}
		if last := blocks[len(blocks)-1]; len(last) >= tftpproto.BlockSize {
			t.Errorf("size %d: final block is %d bytes", tt.n, len(last))
		}
		if !bytes.Equal(joined, contents) {
			t.Errorf("size %d: reassembled file differs", tt.n)
		}
	}
}

// An ack for anything but the outstanding block must not move the
// session; the same DATA packet is produced again for retransmission.
func TestReadStrayAck(t *testing.T) {
	s, err := OpenReadSession(tempFile(t, "f.bin", pattern(600)))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	buf := make([]byte, tftpproto.MaxPacketSize)
	first, err := s.NextPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	wire := append([]byte(nil), first...)

	for _, block := range []uint16{0, 2, 99, 65535} {
		if s.HandleAck(block) {
			t.Errorf("ack of block %d accepted, outstanding is 1", block)
		}
	}
	again, err := s.NextPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, wire) {
		t.Error("retransmitted packet differs from original")
	}

	if !s.HandleAck(1) {
		t.Error("ack of outstanding block rejected")
	}
	next, err := s.NextPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if next.Block() != 2 {
		t.Errorf("after ack, next block is %d, want 2", next.Block())
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := OpenReadSession(filepath.Join(t.TempDir(), "no-such-file"))
	if err == nil {
		t.Fatal("opened a file that does not exist")
	}
	if !os.IsNotExist(err) {
		t.Errorf("got %v, want a not-exist error", err)
	}
}

func TestReadDoneIsSticky(t *testing.T) {
	s, err := OpenReadSession(tempFile(t, "f.bin", []byte("tiny")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	drain(t, s)
	if !s.Done() {
		t.Fatal("session not done after drain")
	}
	buf := make([]byte, tftpproto.MaxPacketSize)
	if pkt, err := s.NextPacket(buf); pkt != nil || err != nil {
		t.Errorf("NextPacket after completion = %v, %v", pkt, err)
	}
}
