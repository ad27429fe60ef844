// Package zoneio is the only place in this module that imports miekg/dns.
// It loads zone files and presentation-format records through that library,
// then converts everything to this module's own dnsmsg.Resource model so the
// rest of the tree never has to reason about a second RR representation.
package zoneio

import (
	"crypto"
	"crypto/x509"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/miekg/dns"

	"github.com/KarpelesLab/dns/dnsmsg"
	"github.com/KarpelesLab/dns/dnssec"
)

// dnsBase32Hex is the extended-hex base32 alphabet RFC 5155 uses for NSEC3
// hashed owner names, without padding.
var dnsBase32Hex = base32.HexEncoding.WithPadding(base32.NoPadding)

var ErrUnsupportedRR = errors.New("zoneio: unsupported record type")

// LoadZone reads every record in the zone file at path under origin and
// returns it converted to this module's Resource type, in file order.
func LoadZone(path, origin string) ([]*dnsmsg.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening zone file %s", path)
	}
	defer f.Close()
	return readZone(f, origin, path)
}

func readZone(r io.Reader, origin, path string) ([]*dnsmsg.Resource, error) {
	zp := dns.NewZoneParser(r, dns.Fqdn(origin), path)
	zp.SetIncludeAllowed(true)

	var out []*dnsmsg.Resource
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		res, err := FromMiek(rr)
		if err != nil {
			return nil, err
		}
		if !inZone(res.Name, origin) {
			log.Printf("[zoneio] %s %s: out of zone, skipping", res.Name, res.Type)
			continue
		}
		out = append(out, res)
	}
	if err := zp.Err(); err != nil {
		return nil, errors.Wrap(ErrParseZone, err.Error())
	}
	return out, nil
}

// inZone reports whether name is the origin itself or a strict subdomain of
// it, the same apex-relative membership test the rest of this module's
// record handling uses.
func inZone(name, origin string) bool {
	name = foldName(name)
	origin = foldName(origin)
	return name == origin || strings.HasSuffix(name, "."+origin)
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, ".")) + "."
}

var ErrParseZone = errors.New("zoneio: zone file parse error")

// ParsePresentationRR parses a single RR, as it would appear as one line of
// a zone file, under origin. It is the building block update.go's script
// parser feeds each add/del operand through.
func ParsePresentationRR(line, origin string) (*dnsmsg.Resource, error) {
	rr, err := dns.NewRR("$ORIGIN " + dns.Fqdn(origin) + "\n" + line)
	if err != nil {
		return nil, errors.Wrap(ErrParseZone, err.Error())
	}
	if rr == nil {
		return nil, errors.Wrap(ErrParseZone, "empty record")
	}
	return FromMiek(rr)
}

// WriteZone writes rrs to path in zone file presentation format, one per
// line, via ToMiek so the textual form matches what any other tool using
// miekg/dns would produce.
func WriteZone(path string, rrs []*dnsmsg.Resource) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating zone file %s", path)
	}
	defer f.Close()

	for _, rr := range rrs {
		mrr, err := ToMiek(rr)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(f, mrr.String()); err != nil {
			return errors.Wrap(err, "writing zone file")
		}
	}
	return nil
}

// FromMiek converts a miekg/dns record into this module's Resource type.
func FromMiek(rr dns.RR) (*dnsmsg.Resource, error) {
	h := rr.Header()
	res := &dnsmsg.Resource{
		Name:  h.Name,
		Type:  dnsmsg.Type(h.Rrtype),
		Class: dnsmsg.Class(h.Class),
		TTL:   h.Ttl,
	}

	data, err := rdataFromMiek(rr)
	if err != nil {
		return nil, err
	}
	res.Data = data
	return res, nil
}

func rdataFromMiek(rr dns.RR) (dnsmsg.RData, error) {
	switch r := rr.(type) {
	case *dns.A:
		return &dnsmsg.RDataIP{IP: r.A, Type: dnsmsg.A}, nil
	case *dns.AAAA:
		return &dnsmsg.RDataIP{IP: r.AAAA, Type: dnsmsg.AAAA}, nil
	case *dns.NS:
		return &dnsmsg.RDataLabel{Label: r.Ns, Type: dnsmsg.NS}, nil
	case *dns.CNAME:
		return &dnsmsg.RDataLabel{Label: r.Target, Type: dnsmsg.CNAME}, nil
	case *dns.DNAME:
		return &dnsmsg.RDataLabel{Label: r.Target, Type: dnsmsg.DNAME}, nil
	case *dns.PTR:
		return &dnsmsg.RDataLabel{Label: r.Ptr, Type: dnsmsg.PTR}, nil
	case *dns.MX:
		return &dnsmsg.RDataMX{Pref: r.Preference, Server: r.Mx}, nil
	case *dns.TXT:
		return dnsmsg.RDataTXT(strings.Join(r.Txt, "")), nil
	case *dns.SOA:
		return &dnsmsg.RDataSOA{
			MName: r.Ns, RName: r.Mbox, Serial: r.Serial,
			Refresh: r.Refresh, Retry: r.Retry, Expire: r.Expire, Minimum: r.Minttl,
		}, nil
	case *dns.SRV:
		return &dnsmsg.RDataSRV{Priority: r.Priority, Weight: r.Weight, Port: r.Port, Target: r.Target}, nil
	case *dns.CAA:
		return &dnsmsg.RDataCAA{Flags: r.Flag, Tag: r.Tag, Value: r.Value}, nil
	case *dns.TLSA:
		cert, err := hex.DecodeString(r.Certificate)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad TLSA certificate hex")
		}
		return &dnsmsg.RDataTLSA{
			Usage: dnsmsg.TLSACertUsage(r.Usage), Selector: dnsmsg.TLSASelector(r.Selector),
			MatchingType: dnsmsg.TLSAMatchingType(r.MatchingType), CertData: cert,
		}, nil
	case *dns.SSHFP:
		fp, err := hex.DecodeString(r.FingerPrint)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad SSHFP fingerprint hex")
		}
		return &dnsmsg.RDataSSHFP{Algorithm: dnsmsg.SSHFPAlgorithm(r.Algorithm), FPType: dnsmsg.SSHFPType(r.Type), Fingerprint: fp}, nil
	case *dns.DNSKEY:
		key, err := base64.StdEncoding.DecodeString(r.PublicKey)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad DNSKEY public key base64")
		}
		return &dnsmsg.RDataDNSKEY{Flags: r.Flags, Protocol: r.Protocol, Algorithm: dnsmsg.Algorithm(r.Algorithm), PublicKey: key}, nil
	case *dns.RRSIG:
		sig, err := base64.StdEncoding.DecodeString(r.Signature)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad RRSIG signature base64")
		}
		return &dnsmsg.RDataRRSIG{
			TypeCovered: dnsmsg.Type(r.TypeCovered), Algorithm: dnsmsg.Algorithm(r.Algorithm),
			Labels: r.Labels, OrigTTL: r.OrigTtl, Expiration: r.Expiration, Inception: r.Inception,
			KeyTag: r.KeyTag, SignerName: r.SignerName, Signature: sig,
		}, nil
	case *dns.DS:
		digest, err := hex.DecodeString(r.Digest)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad DS digest hex")
		}
		return &dnsmsg.RDataDS{KeyTag: r.KeyTag, Algorithm: dnsmsg.Algorithm(r.Algorithm), DigestType: dnsmsg.DigestType(r.DigestType), Digest: digest}, nil
	case *dns.NSEC:
		return &dnsmsg.RDataNSEC{NextDomain: r.NextDomain, TypeBitMap: dnsmsg.EncodeTypeBitmap(miekTypesToTypes(r.TypeBitMap))}, nil
	case *dns.NSEC3:
		salt, err := hex.DecodeString(r.Salt)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad NSEC3 salt hex")
		}
		nh, err := base32HexDecode(r.NextDomain)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad NSEC3 next hashed owner")
		}
		return &dnsmsg.RDataNSEC3{
			HashAlgorithm: dnsmsg.NSEC3HashAlg(r.Hash), Flags: r.Flags, Iterations: r.Iterations,
			Salt: salt, NextHashedOwner: nh, TypeBitMap: dnsmsg.EncodeTypeBitmap(miekTypesToTypes(r.TypeBitMap)),
		}, nil
	case *dns.NSEC3PARAM:
		salt, err := hex.DecodeString(r.Salt)
		if err != nil {
			return nil, errors.Wrap(ErrParseZone, "bad NSEC3PARAM salt hex")
		}
		return &dnsmsg.RDataNSEC3PARAM{HashAlgorithm: dnsmsg.NSEC3HashAlg(r.Hash), Flags: r.Flags, Iterations: r.Iterations, Salt: salt}, nil
	case *dns.RFC3597:
		return rdataFromRFC3597(r)
	default:
		return nil, errors.Wrapf(ErrUnsupportedRR, "%T", rr)
	}
}

// rdataFromRFC3597 handles record types miekg/dns does not parse natively,
// most notably ZONEMD, which this library predates. RFC3597's Rdata field
// is the raw rdata as a hex string, the same layout RDataZONEMD.decode
// expects after the leading length byte miekg strips.
func rdataFromRFC3597(r *dns.RFC3597) (dnsmsg.RData, error) {
	raw, err := hex.DecodeString(r.Rdata)
	if err != nil {
		return nil, errors.Wrap(ErrParseZone, "bad RFC3597 rdata hex")
	}

	t := dnsmsg.Type(r.Hdr.Rrtype)
	if t == dnsmsg.ZONEMD {
		if len(raw) < 6 {
			return nil, errors.Wrap(ErrParseZone, "ZONEMD rdata too short")
		}
		return &dnsmsg.RDataZONEMD{
			Serial:     uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]),
			DigestType: raw[4],
			Reserved:   raw[5],
			Digest:     append([]byte(nil), raw[6:]...),
		}, nil
	}
	return &dnsmsg.RDataRaw{Data: raw, Type: t}, nil
}

// ToMiek converts a Resource back into a miekg/dns record, for WriteZone and
// for anything that needs to hand a record to a library expecting dns.RR.
func ToMiek(rr *dnsmsg.Resource) (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:   dns.Fqdn(rr.Name),
		Rrtype: uint16(rr.Type),
		Class:  uint16(rr.Class),
		Ttl:    rr.TTL,
	}

	switch d := rr.Data.(type) {
	case *dnsmsg.RDataIP:
		if rr.Type == dnsmsg.AAAA {
			return &dns.AAAA{Hdr: hdr, AAAA: d.IP}, nil
		}
		return &dns.A{Hdr: hdr, A: d.IP}, nil
	case *dnsmsg.RDataLabel:
		switch rr.Type {
		case dnsmsg.NS:
			return &dns.NS{Hdr: hdr, Ns: dns.Fqdn(d.Label)}, nil
		case dnsmsg.CNAME:
			return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(d.Label)}, nil
		case dnsmsg.DNAME:
			return &dns.DNAME{Hdr: hdr, Target: dns.Fqdn(d.Label)}, nil
		default:
			return &dns.PTR{Hdr: hdr, Ptr: dns.Fqdn(d.Label)}, nil
		}
	case *dnsmsg.RDataMX:
		return &dns.MX{Hdr: hdr, Preference: d.Pref, Mx: dns.Fqdn(d.Server)}, nil
	case dnsmsg.RDataTXT:
		return &dns.TXT{Hdr: hdr, Txt: []string{string(d)}}, nil
	case *dnsmsg.RDataSOA:
		return &dns.SOA{
			Hdr: hdr, Ns: dns.Fqdn(d.MName), Mbox: dns.Fqdn(d.RName), Serial: d.Serial,
			Refresh: d.Refresh, Retry: d.Retry, Expire: d.Expire, Minttl: d.Minimum,
		}, nil
	case *dnsmsg.RDataSRV:
		return &dns.SRV{Hdr: hdr, Priority: d.Priority, Weight: d.Weight, Port: d.Port, Target: dns.Fqdn(d.Target)}, nil
	case *dnsmsg.RDataCAA:
		return &dns.CAA{Hdr: hdr, Flag: d.Flags, Tag: d.Tag, Value: d.Value}, nil
	case *dnsmsg.RDataTLSA:
		return &dns.TLSA{
			Hdr: hdr, Usage: uint8(d.Usage), Selector: uint8(d.Selector),
			MatchingType: uint8(d.MatchingType), Certificate: strings.ToUpper(hex.EncodeToString(d.CertData)),
		}, nil
	case *dnsmsg.RDataSSHFP:
		return &dns.SSHFP{Hdr: hdr, Algorithm: uint8(d.Algorithm), Type: uint8(d.FPType), FingerPrint: strings.ToUpper(hex.EncodeToString(d.Fingerprint))}, nil
	case *dnsmsg.RDataDNSKEY:
		return &dns.DNSKEY{
			Hdr: hdr, Flags: d.Flags, Protocol: d.Protocol, Algorithm: uint8(d.Algorithm),
			PublicKey: base64.StdEncoding.EncodeToString(d.PublicKey),
		}, nil
	case *dnsmsg.RDataRRSIG:
		return &dns.RRSIG{
			Hdr: hdr, TypeCovered: uint16(d.TypeCovered), Algorithm: uint8(d.Algorithm), Labels: d.Labels,
			OrigTtl: d.OrigTTL, Expiration: d.Expiration, Inception: d.Inception, KeyTag: d.KeyTag,
			SignerName: dns.Fqdn(d.SignerName), Signature: base64.StdEncoding.EncodeToString(d.Signature),
		}, nil
	case *dnsmsg.RDataDS:
		return &dns.DS{
			Hdr: hdr, KeyTag: d.KeyTag, Algorithm: uint8(d.Algorithm), DigestType: uint8(d.DigestType),
			Digest: strings.ToUpper(hex.EncodeToString(d.Digest)),
		}, nil
	case *dnsmsg.RDataNSEC:
		return &dns.NSEC{Hdr: hdr, NextDomain: dns.Fqdn(d.NextDomain), TypeBitMap: typesToMiekTypes(d.Types())}, nil
	case *dnsmsg.RDataNSEC3:
		return &dns.NSEC3{
			Hdr: hdr, Hash: uint8(d.HashAlgorithm), Flags: d.Flags, Iterations: d.Iterations,
			SaltLength: uint8(len(d.Salt)), Salt: strings.ToUpper(hex.EncodeToString(d.Salt)),
			HashLength: uint8(len(d.NextHashedOwner)), NextDomain: strings.ToLower(dnsBase32Hex.EncodeToString(d.NextHashedOwner)),
			TypeBitMap: typesToMiekTypes(d.Types()),
		}, nil
	case *dnsmsg.RDataNSEC3PARAM:
		return &dns.NSEC3PARAM{
			Hdr: hdr, Hash: uint8(d.HashAlgorithm), Flags: d.Flags, Iterations: d.Iterations,
			SaltLength: uint8(len(d.Salt)), Salt: strings.ToUpper(hex.EncodeToString(d.Salt)),
		}, nil
	case *dnsmsg.RDataZONEMD:
		raw := make([]byte, 6+len(d.Digest))
		raw[0], raw[1], raw[2], raw[3] = byte(d.Serial>>24), byte(d.Serial>>16), byte(d.Serial>>8), byte(d.Serial)
		raw[4], raw[5] = d.DigestType, d.Reserved
		copy(raw[6:], d.Digest)
		hdr.Rdlength = uint16(len(raw))
		return &dns.RFC3597{Hdr: hdr, Rdata: hex.EncodeToString(raw)}, nil
	case *dnsmsg.RDataRaw:
		hdr.Rdlength = uint16(len(d.Data))
		return &dns.RFC3597{Hdr: hdr, Rdata: hex.EncodeToString(d.Data)}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedRR, "%T", rr.Data)
	}
}

// LoadZSK reads a PKCS#8-encoded private key from keyFile and pairs it with
// dnskey, the corresponding public DNSKEY record already present in the
// zone, returning a Signer ready to cover the apex ZONEMD RRset.
func LoadZSK(keyFile string, dnskey *dnsmsg.RDataDNSKEY) (*dnssec.Signer, error) {
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "reading key file %s", keyFile)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.Newf("zoneio: %s is not PEM-encoded", keyFile)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing private key in %s", keyFile)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.Newf("zoneio: key in %s does not implement crypto.Signer", keyFile)
	}

	return dnssec.NewSigner(dnskey, signer)
}

func miekTypesToTypes(ts []uint16) []dnsmsg.Type {
	out := make([]dnsmsg.Type, len(ts))
	for i, t := range ts {
		out[i] = dnsmsg.Type(t)
	}
	return out
}

func typesToMiekTypes(ts []dnsmsg.Type) []uint16 {
	out := make([]uint16, len(ts))
	for i, t := range ts {
		out[i] = uint16(t)
	}
	return out
}

func base32HexDecode(s string) ([]byte, error) {
	return dnsBase32Hex.DecodeString(strings.ToUpper(s))
}
