// cmd/backtest replays historical candle data from SQLite through the
// vectorized rule engine to validate a rule against a historical window
// before arming it as a live alert.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=RELIANCE --exchange=NSE --rule=golden-cross --from=2024-01-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/engine"
	"alert-systemv1/internal/rules"
	sqlitestore "alert-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	symbol := flag.String("symbol", "", "Instrument symbol (required)")
	exchange := flag.String("exchange", "NSE", "Exchange code")
	ruleID := flag.String("rule", "", "Rule ID to evaluate (from the built-in library or --rules-file)")
	rulesFile := flag.String("rules-file", "", "Path to a JSON rules file (default: built-in library)")
	baseTF := flag.String("tf", "", "Base timeframe override (default: the rule's timeframe)")
	fromStr := flag.String("from", "", "Window start, YYYY-MM-DD (default: all history)")
	toStr := flag.String("to", "", "Window end, YYYY-MM-DD (default: now)")
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	maxPrint := flag.Int("max-print", 20, "Max matched bars to print")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}

	rule := pickRule(*rulesFile, *ruleID)
	base := rule.Timeframe
	if *baseTF != "" {
		base = *baseTF
	}

	start, end := parseWindow(*fromStr, *toStr)

	// Open SQLite
	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// Preload every timeframe the rule touches.
	ctx := context.Background()
	tfs := append([]string{base}, dsl.Timeframes(rule.Condition)...)
	frames := make(map[string]*candles.Frame, len(tfs))
	for _, tf := range tfs {
		if _, ok := frames[tf]; ok {
			continue
		}
		f, err := candles.Load(ctx, reader, *symbol, *exchange, tf, start, end)
		if err != nil {
			log.Fatalf("[backtest] load %s bars: %v", tf, err)
		}
		frames[tf] = f
		log.Printf("[backtest] loaded %d %s bars", f.Len(), tf)
	}
	baseFrame := frames[base]
	if baseFrame.Len() == 0 {
		log.Fatalf("[backtest] no %s bars for %s:%s in window", base, *exchange, *symbol)
	}

	eng, err := engine.New(base, frames, dsl.DefaultLimits(), engine.WithParams(rule.Params))
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}

	evalStart := time.Now()
	res, err := eng.Evaluate(rule.Condition)
	if err != nil {
		log.Fatalf("[backtest] evaluation failed: %v", err)
	}
	took := time.Since(evalStart)

	// Print per-bar output
	closes := baseFrame.CloseTimes()
	matched := 0
	if res.Bool != nil {
		for i, v := range res.Bool {
			if !v {
				continue
			}
			matched++
			if matched <= *maxPrint {
				fmt.Printf("  [%s] %s MATCH close=%.2f\n",
					closes[i].Format("2006-01-02 15:04"), rule.ID, baseFrame.Close[i])
			}
		}
		if matched > *maxPrint {
			fmt.Printf("  ... and %d more\n", matched-*maxPrint)
		}
	} else {
		defined := 0
		for i, v := range res.Num {
			if math.IsNaN(v) {
				continue
			}
			defined++
			if defined <= *maxPrint {
				fmt.Printf("  [%s] %s = %.4f\n", closes[i].Format("2006-01-02 15:04"), rule.ID, v)
			}
		}
		matched = defined
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Rule:              %-16s ║\n", trunc(rule.ID, 16))
	fmt.Printf("║  Bars evaluated:    %-16d ║\n", baseFrame.Len())
	fmt.Printf("║  Matches:           %-16d ║\n", matched)
	fmt.Printf("║  Timeframes:        %-16v ║\n", trunc(fmt.Sprint(tfs), 16))
	fmt.Printf("║  Took:              %-16s ║\n", took.Truncate(time.Microsecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

// pickRule resolves the rule to evaluate from the rules file or the
// built-in library. An empty ID picks the first rule.
func pickRule(rulesFile, ruleID string) *rules.Rule {
	var set []*rules.Rule
	if rulesFile != "" {
		var err error
		set, err = rules.LoadFile(rulesFile)
		if err != nil {
			log.Fatalf("[backtest] load rules: %v", err)
		}
	} else {
		set = rules.Library()
	}
	if len(set) == 0 {
		log.Fatal("[backtest] no rules available")
	}
	if ruleID == "" {
		fmt.Fprintln(os.Stderr, "available rules:")
		for _, r := range set {
			fmt.Fprintf(os.Stderr, "  %-24s %s\n", r.ID, r.Name)
		}
		log.Fatal("[backtest] --rule is required")
	}
	for _, r := range set {
		if r.ID == ruleID {
			return r
		}
	}
	log.Fatalf("[backtest] rule %q not found", ruleID)
	return nil
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time) {
	var start, end time.Time
	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			log.Fatalf("[backtest] bad --from: %v", err)
		}
		start = t
	}
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			log.Fatalf("[backtest] bad --to: %v", err)
		}
		end = t
	} else {
		end = time.Now().UTC()
	}
	return start, end
}

func trunc(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
