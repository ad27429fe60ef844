package zonemd

import (
	"bufio"
	"io"
	"log"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/KarpelesLab/dns/dnsmsg"
)

// UpdateOp is one line of an update script: either add rr or del rr.
type UpdateOp struct {
	Del bool
	RR  *dnsmsg.Resource
}

// ParseUpdateScript reads "add <rr>" / "del <rr>" lines from r, handing each
// presentation-format RR off to parseRR for parsing. Blank lines and lines
// starting with ';' are ignored, matching the zone file comment convention.
// A line that is neither add/del-prefixed, or whose RR fails to parse, is
// skipped with a logged warning rather than aborting the whole script.
func ParseUpdateScript(r io.Reader, parseRR func(string) (*dnsmsg.Resource, error)) ([]UpdateOp, error) {
	var ops []UpdateOp
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		var del bool
		switch {
		case strings.HasPrefix(line, "add "):
			del = false
		case strings.HasPrefix(line, "del "):
			del = true
		default:
			log.Printf("[zonemd] update script line %d: expected add/del, got %q, skipping", lineNo, line)
			continue
		}

		rr, err := parseRR(strings.TrimSpace(line[4:]))
		if err != nil {
			log.Printf("[zonemd] update script line %d: %v, skipping", lineNo, err)
			continue
		}
		ops = append(ops, UpdateOp{Del: del, RR: rr})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return ops, nil
}

// ApplyUpdate runs ops against store in order. add always inserts. del
// removes the single record matching the given owner name, type, class and
// rdata; a del with no match logs a warning instead of silently succeeding,
// since skipping it would leave the caller believing a record was removed
// when the zone did not actually change. An out-of-zone RR is itself a
// warning, not a fatal error: it is skipped and the rest of the batch still
// applies.
func ApplyUpdate(store Store, origin string, ops []UpdateOp) (applied int, err error) {
	for _, op := range ops {
		if err := checkInZone(op.RR, origin); err != nil {
			log.Printf("[zonemd] update: %v, skipping", err)
			continue
		}

		if !op.Del {
			store.Add(op.RR)
			applied++
			continue
		}

		if !store.RemoveExact(op.RR) {
			log.Printf("[zonemd] del %s %s: no matching record found", op.RR.Name, op.RR.Type)
			continue
		}
		applied++
	}
	return applied, nil
}

func checkInZone(rr *dnsmsg.Resource, origin string) error {
	name := canonicalOwner(rr.Name)
	origin = canonicalOwner(origin)
	if name == origin || strings.HasSuffix(name, "."+origin) {
		return nil
	}
	return errors.Wrapf(ErrOutOfZone, "%s not under %s", rr.Name, origin)
}
