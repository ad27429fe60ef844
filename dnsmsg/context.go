package dnsmsg

import (
	"encoding/binary"
	"io"
	"strings"
)

// context carries the read/write position for a single RR's wire encoding.
//
// A ZONEMD digest is computed one RR at a time and must never depend on
// what came before it in the stream (RFC 4034 §6.2's canonical form
// forbids name compression for exactly this reason). So, unlike the
// message-framing context this package's ancestor used for whole DNS
// messages, there is no label cache here: every name is always written
// out in full, and compression pointers are never produced or accepted.
type context struct {
	rawMsg []byte
	rpos   int // read position
}

func (c *context) Write(p []byte) (int, error) {
	c.rawMsg = append(c.rawMsg, p...)
	return len(p), nil
}

func (c *context) Read(p []byte) (int, error) {
	if c.rpos >= len(c.rawMsg) {
		return 0, io.EOF
	}
	n := copy(p, c.rawMsg[c.rpos:])
	c.rpos += n
	return n, nil
}

func (c *context) Len() int {
	return len(c.rawMsg)
}

func (c *context) putUint16(pos int, v uint16) {
	binary.BigEndian.PutUint16(c.rawMsg[pos:pos+2], v)
}

func (c *context) readLen(l int) ([]byte, error) {
	if l == 0 {
		return nil, nil
	}
	if c.rpos+l > len(c.rawMsg) {
		return nil, io.EOF
	}
	pos := c.rpos
	c.rpos += l
	return c.rawMsg[pos:c.rpos], nil
}

// appendLabel writes name in full, length-prefixed label form, terminated
// by the root label. The trailing dot, if present, is optional.
func (c *context) appendLabel(name string) error {
	if len(name) > 255 {
		return ErrNameTooLong
	}
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		c.rawMsg = append(c.rawMsg, 0)
		return nil
	}

	for _, lbl := range strings.Split(name, ".") {
		if lbl == "" {
			return ErrLabelInvalid
		}
		if len(lbl) > 63 {
			return ErrLabelTooLong
		}
		c.rawMsg = append(c.rawMsg, byte(len(lbl)))
		c.rawMsg = append(c.rawMsg, lbl...)
	}
	c.rawMsg = append(c.rawMsg, 0)
	return nil
}

// parseLabel reads one full dotted name, with no compression pointers,
// starting at the context's current read position.
func (c *context) parseLabel() (string, error) {
	if c.rpos >= len(c.rawMsg) {
		return "", io.EOF
	}
	name, n, err := readLabel(c.rawMsg[c.rpos:])
	if err != nil {
		return name, err
	}
	c.rpos += n
	return name, nil
}

// readLabel reads one full dotted name out of d, for callers (rdata decoders)
// that already hold the rdata slice directly rather than reading through the
// context's own position.
func (c *context) readLabel(d []byte) (string, int, error) {
	return readLabel(d)
}

// readLabel reads one full dotted name out of buf, returning the name, the
// number of bytes consumed, and any error. Compression pointers are
// rejected: this package never emits them, and every RR reaching it from
// zoneio has already been expanded to a flat name by miekg/dns.
func readLabel(buf []byte) (string, int, error) {
	var sb strings.Builder
	read := 0

	for {
		if read >= len(buf) {
			return "", read, io.ErrUnexpectedEOF
		}
		l := int(buf[read])
		if l&0xc0 != 0 {
			return "", read, ErrLabelInvalid
		}
		read++
		if l == 0 {
			return sb.String() + ".", read, nil
		}
		if read+l > len(buf) {
			return "", read, io.ErrUnexpectedEOF
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.Write(buf[read : read+l])
		read += l
	}
}
