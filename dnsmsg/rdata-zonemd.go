package dnsmsg

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// RDataZONEMD carries a zone digest record, as defined by
// draft-ietf-dnsop-dns-zone-digest (published as RFC 8976). Serial is the
// zone's SOA serial at the time the digest was taken, DigestType identifies
// the hash algorithm (1 = SHA-384, 2 = SHA-512), Reserved is the scheme
// octet (always 0 for the simple scheme this module implements), and
// Digest is the raw hash output.
type RDataZONEMD struct {
	Serial     uint32
	DigestType uint8
	Reserved   uint8
	Digest     []byte
}

func (z *RDataZONEMD) GetType() Type {
	return ZONEMD
}

func (z *RDataZONEMD) String() string {
	return fmt.Sprintf("%d %d %d %s", z.Serial, z.DigestType, z.Reserved, hex.EncodeToString(z.Digest))
}

func (z *RDataZONEMD) encode(c *context) error {
	if err := binary.Write(c, binary.BigEndian, z.Serial); err != nil {
		return err
	}
	if _, err := c.Write([]byte{z.DigestType, z.Reserved}); err != nil {
		return err
	}
	_, err := c.Write(z.Digest)
	return err
}

func (z *RDataZONEMD) decode(c *context, d []byte) error {
	if len(d) < 6 {
		return ErrInvalidLen
	}
	z.Serial = binary.BigEndian.Uint32(d[:4])
	z.DigestType = d[4]
	z.Reserved = d[5]
	z.Digest = append([]byte(nil), d[6:]...)
	return nil
}
