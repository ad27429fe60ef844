package dnsmsg

import "encoding/binary"

type Resource struct {
	Name  string
	Type  Type
	Class Class
	TTL   uint32

	Data RData
}

// EncodeRData writes just d's rdata portion in flat, uncompressed wire
// format, without an owner name, type, class, TTL or RDLENGTH prefix: the
// same rdata bytes Encode writes after RDLENGTH, exposed separately for
// canonicalizers that need the bare rdata bytes (e.g. for RFC 4034 §6.3
// RRset ordering).
func EncodeRData(d RData) ([]byte, error) {
	c := &context{}
	if err := d.encode(c); err != nil {
		return nil, err
	}
	return c.rawMsg, nil
}

// Encode writes r in flat, uncompressed wire format: owner name, type,
// class, TTL, RDLENGTH, then the rdata itself. This is the canonical byte
// representation a digest is computed over, so it never takes shortcuts a
// full message encoder might: no name compression, no reuse of another
// RR's bytes.
func (r *Resource) Encode() ([]byte, error) {
	c := &context{}

	if err := c.appendLabel(r.Name); err != nil {
		return nil, err
	}
	if err := binary.Write(c, binary.BigEndian, r.Type); err != nil {
		return nil, err
	}
	if err := binary.Write(c, binary.BigEndian, r.Class); err != nil {
		return nil, err
	}
	if err := binary.Write(c, binary.BigEndian, r.TTL); err != nil {
		return nil, err
	}

	lenPos := c.Len()
	if err := binary.Write(c, binary.BigEndian, uint16(0)); err != nil {
		return nil, err
	}

	rdStart := c.Len()
	if err := r.Data.encode(c); err != nil {
		return nil, err
	}
	c.putUint16(lenPos, uint16(c.Len()-rdStart))

	return c.rawMsg, nil
}

// Decode parses a single RR from flat, uncompressed wire format, as
// produced by Encode.
func Decode(buf []byte) (*Resource, error) {
	c := &context{rawMsg: buf}
	return c.parseResource()
}

func (c *context) parseResource() (*Resource, error) {
	lbl, err := c.parseLabel()
	if err != nil {
		return nil, err
	}
	r := &Resource{Name: lbl}

	err = binary.Read(c, binary.BigEndian, &r.Type)
	if err != nil {
		return nil, err
	}
	err = binary.Read(c, binary.BigEndian, &r.Class)
	if err != nil {
		return nil, err
	}
	err = binary.Read(c, binary.BigEndian, &r.TTL)
	if err != nil {
		return nil, err
	}

	var l uint16 // RDLENGTH
	err = binary.Read(c, binary.BigEndian, &l)
	if err != nil {
		return nil, err
	}

	rdbuf, err := c.readLen(int(l))
	if err != nil {
		return nil, err
	}

	r.Data, err = c.parseRData(r.Type, rdbuf)
	if err != nil {
		return nil, err
	}

	return r, nil
}
