//+build gofuzz

package tftpproto

// Automated fuzz testing

func Fuzz(data []byte) int {
	p, err := Parse(data)
	if err != nil {
		if p != nil {
			panic("Parse returned a packet alongside an error")
		}
		return 0
	}
	// exercise the accessors; none may read out of bounds on
	// input accepted by Parse
	switch m := p.(type) {
	case Rrq:
		_, _ = m.Filename(), m.Mode()
	case Wrq:
		_, _ = m.Filename(), m.Mode()
	case Data:
		_, _ = m.Block(), m.Payload()
	case Ack:
		_ = m.Block()
	case Err:
		_, _ = m.Code(), m.Message()
	}
	return 1
}
