package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KarpelesLab/dns/dnsmsg"
	"github.com/KarpelesLab/dns/dnssec"
	"github.com/KarpelesLab/dns/internal/zoneio"
	"github.com/KarpelesLab/dns/zonemd"
	"github.com/KarpelesLab/dns/zonemd/cache"
)

// multiFlag collects repeated -p flags, bounded at 10.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	if len(*m) >= 10 {
		return fmt.Errorf("too many -p flags (max 10)")
	}
	*m = append(*m, v)
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Printf("[main] %v", err)
		if ec, ok := err.(exitError); ok {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func run() error {
	var (
		doCalc     bool
		doVerify   bool
		placeh     multiFlag
		updateFile string
		outFile    string
		keyFile    string
		treeDepth  int
		treeWidth  int
		timing     bool
		quiet      bool
		cacheDir   string
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] <origin> [<zonefile>]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.BoolVar(&doCalc, "c", false, "calculate and write back the apex digest(s)")
	flag.BoolVar(&doVerify, "v", false, "verify the existing apex digest(s)")
	flag.Var(&placeh, "p", "insert a placeholder ZONEMD of the given digest type (repeatable)")
	flag.StringVar(&updateFile, "u", "", "apply this update script before the final write")
	flag.StringVar(&outFile, "o", "", "write the resulting zone to this file")
	flag.StringVar(&keyFile, "z", "", "zone-signing key, triggers resigning of the ZONEMD RRset")
	flag.IntVar(&treeDepth, "D", 0, "tree depth (tree mode only)")
	flag.IntVar(&treeWidth, "W", 13, "tree fanout (tree mode only)")
	flag.BoolVar(&timing, "t", false, "print phase timings")
	flag.BoolVar(&quiet, "q", false, "quiet mode")
	flag.StringVar(&cacheDir, "cache", "", "enable the leaf digest cache at this directory (tree mode only)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		flag.Usage()
		return exitError{2, fmt.Errorf("expected <origin> [<zonefile>]")}
	}
	origin := args[0]
	zoneFile := origin
	if len(args) == 2 {
		zoneFile = args[1]
	}

	phase := newTimer(timing)

	rrs, err := zoneio.LoadZone(zoneFile, origin)
	if err != nil {
		return exitError{3, fmt.Errorf("loading zone: %w", err)}
	}
	phase("load")

	var store zonemd.Store
	if treeDepth > 0 || treeWidth != 13 {
		store = zonemd.NewTreeStore(treeWidth, treeDepth)
	} else {
		store = zonemd.NewFlatStore()
	}
	for _, rr := range rrs {
		store.Add(rr)
	}

	var leafCache *cache.Cache
	if cacheDir != "" {
		if _, flat := store.(*zonemd.FlatStore); flat {
			log.Printf("[zonemd] -cache has no effect in flat mode, ignoring")
		} else {
			leafCache, err = cache.Open(cacheDir)
			if err != nil {
				return exitError{3, fmt.Errorf("opening cache: %w", err)}
			}
			defer leafCache.Close()
		}
	}

	ctl := &zonemd.Controller{Origin: origin, Store: store}
	if leafCache != nil {
		ctl.Cache = leafCache
	}

	wrote := false

	if len(placeh) > 0 {
		types, err := parseDigestTypes(placeh)
		if err != nil {
			return exitError{2, err}
		}
		if err := ctl.AddPlaceholders(types); err != nil {
			return exitError{4, fmt.Errorf("adding placeholders: %w", err)}
		}
		wrote = true
		phase("placeholders")
	}

	if updateFile != "" {
		f, err := os.Open(updateFile)
		if err != nil {
			return exitError{3, fmt.Errorf("opening update file: %w", err)}
		}
		ops, err := zonemd.ParseUpdateScript(f, func(line string) (*dnsmsg.Resource, error) {
			return zoneio.ParsePresentationRR(line, origin)
		})
		f.Close()
		if err != nil {
			return exitError{3, fmt.Errorf("parsing update script: %w", err)}
		}
		if _, err := zonemd.ApplyUpdate(store, origin, ops); err != nil {
			return exitError{4, fmt.Errorf("applying update: %w", err)}
		}
		phase("update")
	}

	if doCalc {
		var signer *dnssec.Signer
		if keyFile != "" {
			dnskey := findApexDNSKEY(store, origin)
			if dnskey == nil {
				return exitError{4, fmt.Errorf("no apex DNSKEY found to pair with -z")}
			}
			signer, err = zoneio.LoadZSK(keyFile, dnskey)
			if err != nil {
				return exitError{4, fmt.Errorf("loading zone-signing key: %w", err)}
			}
		}
		now := uint32(time.Now().Unix())
		if err := ctl.Calculate(signer, origin, 3600, now, now+30*86400); err != nil {
			return exitError{4, fmt.Errorf("calculating digest: %w", err)}
		}
		wrote = true
		phase("calculate")
	}

	exitCode := 0
	if doVerify {
		ok, mismatches, err := ctl.Verify()
		if err != nil {
			return exitError{4, fmt.Errorf("verify: %w", err)}
		}
		for _, m := range mismatches {
			log.Printf("[zonemd] verify: %v", m)
		}
		if !ok {
			exitCode = 1
		} else if !quiet {
			log.Printf("[zonemd] verify: OK")
		}
		phase("verify")
	}

	if outFile != "" && wrote {
		all := store.All()
		if err := zoneio.WriteZone(outFile, all); err != nil {
			return exitError{3, fmt.Errorf("writing zone: %w", err)}
		}
		phase("write")
	}

	if exitCode != 0 {
		return exitError{exitCode, fmt.Errorf("verify failed")}
	}
	return nil
}

func parseDigestTypes(vals []string) ([]byte, error) {
	out := make([]byte, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("invalid digest type %q", v)
		}
		out = append(out, byte(n))
	}
	return out, nil
}

func findApexDNSKEY(store zonemd.Store, origin string) *dnsmsg.RDataDNSKEY {
	for _, rr := range store.All() {
		if rr.Type != dnsmsg.DNSKEY {
			continue
		}
		if key, ok := rr.Data.(*dnsmsg.RDataDNSKEY); ok && strings.EqualFold(strings.TrimSuffix(rr.Name, "."), strings.TrimSuffix(origin, ".")) {
			return key
		}
	}
	return nil
}

func newTimer(enabled bool) func(phase string) {
	last := time.Now()
	return func(phase string) {
		if !enabled {
			return
		}
		now := time.Now()
		log.Printf("[zonemd] phase %s: %s", phase, now.Sub(last))
		last = now
	}
}
