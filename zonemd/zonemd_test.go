package zonemd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/KarpelesLab/dns/dnsmsg"
)

const testOrigin = "example.com."

func soaRR() *dnsmsg.Resource {
	return &dnsmsg.Resource{
		Name:  testOrigin,
		Type:  dnsmsg.SOA,
		Class: dnsmsg.IN,
		TTL:   3600,
		Data: &dnsmsg.RDataSOA{
			MName: "ns1." + testOrigin, RName: "root." + testOrigin,
			Serial: 1, Refresh: 3600, Retry: 600, Expire: 604800, Minimum: 3600,
		},
	}
}

func nsRR() *dnsmsg.Resource {
	return &dnsmsg.Resource{
		Name: testOrigin, Type: dnsmsg.NS, Class: dnsmsg.IN, TTL: 3600,
		Data: &dnsmsg.RDataLabel{Label: "ns1." + testOrigin, Type: dnsmsg.NS},
	}
}

func txtRR(val string) *dnsmsg.Resource {
	return &dnsmsg.Resource{
		Name: testOrigin, Type: dnsmsg.TXT, Class: dnsmsg.IN, TTL: 3600,
		Data: dnsmsg.RDataTXT(val),
	}
}

func baseZone() []*dnsmsg.Resource {
	return []*dnsmsg.Resource{soaRR(), nsRR()}
}

func TestFlatAndTreeProduceSameDigest(t *testing.T) {
	flat := NewFlatStore()
	tree := NewTreeStore(13, 2)
	for _, rr := range baseZone() {
		flat.Add(rr)
		tree.Add(rr)
	}

	df, err := Compute(flat, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatalf("flat compute: %v", err)
	}
	dt, err := Compute(tree, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatalf("tree compute: %v", err)
	}
	if !bytes.Equal(df, dt) {
		t.Fatalf("flat and tree digests differ: %x vs %x", df, dt)
	}
}

func TestTreeDigestIndependentOfWidthDepth(t *testing.T) {
	a := NewTreeStore(13, 0)
	b := NewTreeStore(7, 2)
	for _, rr := range baseZone() {
		a.Add(rr)
		b.Add(rr)
	}
	da, err := Compute(a, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Compute(b, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(da, db) {
		t.Fatalf("digest should not depend on tree shape: %x vs %x", da, db)
	}
}

func TestCalculateThenVerify(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	ctl := &Controller{Origin: testOrigin, Store: store}

	if err := ctl.AddPlaceholders([]byte{DigestSHA384}); err != nil {
		t.Fatalf("add placeholders: %v", err)
	}
	if err := ctl.Calculate(nil, "", 0, 0, 0); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	ok, mismatches, err := ctl.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected verify to pass, got mismatches: %+v", mismatches)
	}
}

func TestDigestChangesWithTTL(t *testing.T) {
	withTTL3600 := NewFlatStore()
	for _, rr := range baseZone() {
		withTTL3600.Add(rr)
	}

	withTTL7200 := NewFlatStore()
	for _, rr := range baseZone() {
		cp := *rr
		cp.TTL = 7200
		withTTL7200.Add(&cp)
	}

	d1, err := Compute(withTTL3600, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Compute(withTTL7200, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(d1, d2) {
		t.Fatal("records differing only in TTL must not hash identically")
	}
}

func TestPlaceholderTTLMatchesSOATTL(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	ctl := &Controller{Origin: testOrigin, Store: store}
	if err := ctl.AddPlaceholders([]byte{DigestSHA384}); err != nil {
		t.Fatal(err)
	}
	for _, rr := range store.All() {
		if rr.Type == dnsmsg.ZONEMD {
			if rr.TTL != 3600 {
				t.Fatalf("expected placeholder TTL to match SOA TTL 3600, got %d", rr.TTL)
			}
			return
		}
	}
	t.Fatal("no ZONEMD placeholder found")
}

func TestVerifyDetectsMutation(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	ctl := &Controller{Origin: testOrigin, Store: store}

	if err := ctl.AddPlaceholders([]byte{DigestSHA384}); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Calculate(nil, "", 0, 0, 0); err != nil {
		t.Fatal(err)
	}

	// mutate the NS record's target after the digest was taken
	ns := store.All()[1].Data.(*dnsmsg.RDataLabel)
	ns.Label = "ns2." + testOrigin

	ok, mismatches, err := ctl.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected verify to fail after mutation")
	}
	if len(mismatches) != 1 || mismatches[0].Kind != ErrDigestMismatch {
		t.Fatalf("expected one digest mismatch, got %+v", mismatches)
	}
}

func TestVerifyNoZonemdFails(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	ctl := &Controller{Origin: testOrigin, Store: store}
	if _, _, err := ctl.Verify(); err != ErrNoZonemd {
		t.Fatalf("expected ErrNoZonemd, got %v", err)
	}
}

func TestDuplicateRecordsCollapse(t *testing.T) {
	withOne := NewFlatStore()
	for _, rr := range baseZone() {
		withOne.Add(rr)
	}
	withOne.Add(txtRR("x"))

	withTwo := NewFlatStore()
	for _, rr := range baseZone() {
		withTwo.Add(rr)
	}
	withTwo.Add(txtRR("x"))
	withTwo.Add(txtRR("x"))

	d1, err := Compute(withOne, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Compute(withTwo, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatalf("duplicate record should not change digest: %x vs %x", d1, d2)
	}
}

func TestPlaceholderDigestIsZeroedBeforeHashing(t *testing.T) {
	storeA := NewFlatStore()
	for _, rr := range baseZone() {
		storeA.Add(rr)
	}
	placeholder, err := Pack(1, DigestSHA384, make([]byte, 48))
	if err != nil {
		t.Fatal(err)
	}
	storeA.Add(&dnsmsg.Resource{Name: testOrigin, Type: dnsmsg.ZONEMD, Class: dnsmsg.IN, Data: placeholder})

	storeB := NewFlatStore()
	for _, rr := range baseZone() {
		storeB.Add(rr)
	}
	garbage := bytes.Repeat([]byte{0xff}, 48)
	placeholderB, err := Pack(1, DigestSHA384, garbage)
	if err != nil {
		t.Fatal(err)
	}
	storeB.Add(&dnsmsg.Resource{Name: testOrigin, Type: dnsmsg.ZONEMD, Class: dnsmsg.IN, Data: placeholderB})

	da, err := Compute(storeA, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Compute(storeB, testOrigin, DigestSHA384, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(da, db) {
		t.Fatalf("digest must not depend on the placeholder's own current digest bytes: %x vs %x", da, db)
	}
}

func TestUpdateScriptDelRemovesMatchingRecord(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	extra := txtRR("removable")
	store.Add(extra)

	ops := []UpdateOp{{Del: true, RR: txtRR("removable")}}
	applied, err := ApplyUpdate(store, testOrigin, ops)
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied op, got %d", applied)
	}
	for _, rr := range store.All() {
		if rr.Type == dnsmsg.TXT {
			t.Fatalf("expected TXT record to be removed, still present: %v", rr)
		}
	}
}

func TestUpdateScriptDelWithNoMatchIsAWarningNotAnError(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	ops := []UpdateOp{{Del: true, RR: txtRR("never-added")}}
	applied, err := ApplyUpdate(store, testOrigin, ops)
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected 0 applied ops for a no-match del, got %d", applied)
	}
}

func TestParseUpdateScriptSkipsMalformedLines(t *testing.T) {
	script := strings.NewReader(strings.Join([]string{
		"; a comment",
		"",
		"this line is neither add nor del",
		"add " + testOrigin + " 3600 IN TXT \"ok\"",
		"add this does not parse as an rr",
		"del " + testOrigin + " 3600 IN TXT \"ok\"",
	}, "\n"))

	ops, err := ParseUpdateScript(script, func(line string) (*dnsmsg.Resource, error) {
		if strings.Contains(line, "does not parse") {
			return nil, errors.New("bad rr")
		}
		return txtRR("ok"), nil
	})
	if err != nil {
		t.Fatalf("expected malformed lines to be skipped, not fatal: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 well-formed ops to survive, got %d", len(ops))
	}
	if ops[0].Del || !ops[1].Del {
		t.Fatalf("expected add then del, got %+v", ops)
	}
}

func TestUpdateScriptSkipsOutOfZoneWithoutAborting(t *testing.T) {
	store := NewFlatStore()
	for _, rr := range baseZone() {
		store.Add(rr)
	}
	outside := &dnsmsg.Resource{Name: "other.net.", Type: dnsmsg.TXT, Class: dnsmsg.IN, Data: dnsmsg.RDataTXT("x")}
	inZone := txtRR("still-applied")
	applied, err := ApplyUpdate(store, testOrigin, []UpdateOp{{RR: outside}, {RR: inZone}})
	if err != nil {
		t.Fatalf("out-of-zone record should be a warning, not a fatal error: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected the in-zone op to still apply, got %d applied", applied)
	}
	found := false
	for _, rr := range store.All() {
		if rr.Type == dnsmsg.TXT {
			found = true
		}
		if rr.Name == "other.net." {
			t.Fatalf("out-of-zone record should not have been added: %v", rr)
		}
	}
	if !found {
		t.Fatal("expected the in-zone TXT record to have been added")
	}
}

func TestPackRejectsWrongDigestLength(t *testing.T) {
	if _, err := Pack(1, DigestSHA384, make([]byte, 10)); err == nil {
		t.Fatal("expected error for short digest")
	}
}

func TestUpdateDigestRejectsTypeMismatch(t *testing.T) {
	rr := &dnsmsg.Resource{Name: testOrigin, Type: dnsmsg.ZONEMD, Class: dnsmsg.IN}
	rr.Data, _ = Pack(1, DigestSHA384, make([]byte, 48))
	if err := UpdateDigest(rr, 2, make([]byte, 64)); !errors.Is(err, ErrDigestTypeMismatch) {
		t.Fatalf("expected ErrDigestTypeMismatch, got %v", err)
	}
}
