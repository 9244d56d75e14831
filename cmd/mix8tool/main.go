// mix8tool is a small headless CLI that exercises the evaluation core
// outside of a real search: it can inspect a Mix8 weight file's header
// (with cached metadata) or full contents, or build a transposition
// table, populate it with synthetic records, and report its
// usage/dump-size statistics. It stands in for a full engine protocol
// front end, protocol plumbing being out of scope here.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
	"github.com/nguyencongminh090/Rapfi-engine/internal/mix8"
	"github.com/nguyencongminh090/Rapfi-engine/internal/tt"
	"github.com/nguyencongminh090/Rapfi-engine/internal/weight"
)

var (
	mode       = flag.String("mode", "tt-demo", "what to run: \"weight\" loads a Mix8 weight file and evaluates one move, \"header\" prints a weight file's header via the metadata cache, \"tt-demo\" exercises the transposition table")
	weightPath = flag.String("weight", "", "path to a Mix8 weight file (mode=weight/header)")
	boardSize  = flag.Int("board-size", 15, "board side length (mode=weight)")
	rule       = flag.String("rule", "freestyle", "rule the weight file must support: freestyle, standard, or renju (mode=weight)")
	hashSizeKB = flag.Int("hash-kb", 16*1024, "transposition table size in KB (mode=tt-demo)")
)

func main() {
	flag.Parse()

	switch *mode {
	case "weight":
		if err := runWeightInspect(); err != nil {
			log.Fatal(err)
		}
	case "header":
		if err := runHeaderInspect(); err != nil {
			log.Fatal(err)
		}
	case "tt-demo":
		runTTDemo()
	default:
		log.Fatalf("unknown -mode %q", *mode)
	}
}

func parseRule(s string) (board.Rule, error) {
	switch s {
	case "freestyle":
		return board.Freestyle, nil
	case "standard":
		return board.Standard, nil
	case "renju":
		return board.Renju, nil
	default:
		return 0, fmt.Errorf("unknown rule %q", s)
	}
}

func runWeightInspect() error {
	if *weightPath == "" {
		return fmt.Errorf("-weight is required for -mode=weight")
	}
	r, err := parseRule(*rule)
	if err != nil {
		return err
	}

	reg := weight.NewRegistry[mix8.Weight]()
	eval, err := mix8.NewEvaluator(reg, *boardSize, r, *weightPath, *weightPath)
	if err != nil {
		return fmt.Errorf("loading weight: %w", err)
	}
	defer eval.Close()

	eval.BeforeMove(board.Black, *boardSize/2, *boardSize/2)
	v := eval.EvaluateValue(board.Black)
	fmt.Printf("board size: %d, rule: %s\n", *boardSize, *rule)
	fmt.Printf("center-move eval: win=%.4f loss=%.4f draw=%.4f\n", v.Win(), v.Loss(), v.Draw())
	return nil
}

func runHeaderInspect() error {
	if *weightPath == "" {
		return fmt.Errorf("-weight is required for -mode=header")
	}

	cacheDir, err := weight.DefaultMetadataCacheDir()
	if err != nil {
		return err
	}
	cache, err := weight.OpenMetadataCache(cacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	header, hit, err := cache.Lookup(*weightPath)
	if err != nil {
		return err
	}
	if !hit {
		f, err := os.Open(*weightPath)
		if err != nil {
			return err
		}
		defer f.Close()
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening compressed weight: %w", err)
		}
		defer zr.Close()
		header, err = weight.ReadStandardHeader(zr)
		if err != nil {
			return fmt.Errorf("reading weight header: %w", err)
		}
		if err := cache.Store(*weightPath, header); err != nil {
			return err
		}
	}

	if hit {
		fmt.Println("metadata cache: hit")
	} else {
		fmt.Println("metadata cache: miss")
	}
	fmt.Printf("arch hash: 0x%08x\n", header.ArchHash)

	var rules []string
	for _, r := range []board.Rule{board.Freestyle, board.Standard, board.Renju} {
		if header.SupportsRule(r) {
			rules = append(rules, r.String())
		}
	}
	fmt.Printf("rules: %v\n", rules)

	var sizes []int
	for s := 1; s < 32; s++ {
		if header.SupportsBoardSize(s) {
			sizes = append(sizes, s)
		}
	}
	fmt.Printf("board sizes: %v\n", sizes)
	fmt.Printf("description: %s\n", header.Description)
	return nil
}

func runTTDemo() {
	table := tt.NewHashTable(*hashSizeKB)
	fmt.Printf("allocated table with %d buckets (%d entries)\n", table.NumBuckets(), table.NumBuckets()*tt.EntriesPerBucket)

	const numRecords = 10000
	for i := 0; i < numRecords; i++ {
		hash := board.HashKey(i)*0x9E3779B97F4A7C15 + 1
		table.Store(hash, tt.Value(i%2000-1000), tt.Value(i%500), i%3 == 0, tt.BoundExact, board.Pos(i%225), tt.DepthLowerBound+1+i%50, 0)
	}

	fmt.Printf("hash usage after %d stores: %d permille\n", numRecords, table.HashUsage())

	f, err := os.CreateTemp("", "mix8tool-tt-dump-*.bin")
	if err != nil {
		log.Fatalf("creating dump file: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := table.Dump(f); err != nil {
		log.Fatalf("dumping table: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("stat dump file: %v", err)
	}
	fmt.Printf("dump size: %d bytes\n", info.Size())
}
