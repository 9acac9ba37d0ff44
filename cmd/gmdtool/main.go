// gmdtool is a CLI utility for decoding GMD vertex packing flags.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/gmd-layout/internal/config"
	"github.com/Faultbox/gmd-layout/internal/layoutcache"
	"github.com/Faultbox/gmd-layout/internal/logger"
	"github.com/Faultbox/gmd-layout/internal/survey"
	"github.com/Faultbox/gmd-layout/pkg/gmd"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var code int
	switch command {
	case "decode", "d":
		code = cmdDecode(args)
	case "table":
		code = cmdTable(args)
	case "survey":
		code = cmdSurvey(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		code = 1
	}

	logger.Sync()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`gmdtool - GMD vertex layout utility

Usage:
  gmdtool <command> [options]

Commands:
  decode [-unchecked] <flags>...          Decode packing flags into attribute layouts
  table <flags>...                        Print per-attribute component counts
  survey [-o report.yaml] <records.yaml>  Cross-check shader layouts in a record file

Common options:
  -config <file>   Config file (default ./gmdtool.yaml or the user config dir)
  -debug           Enable debug logging
  -unchecked       Skip the flag bit coverage check
  -workers <n>     Parallel decoders

Examples:
  gmdtool decode 0x0000000000000000
  gmdtool decode 0x000005f928000000 0x0000000000000400
  gmdtool table 0x000005f928000000
  gmdtool survey -o report.yaml records.yaml`)
}

// setup parses the subcommand flags, loads config and starts logging.
func setup(name string, args []string, withReport bool) (*config.Config, *flag.FlagSet, bool) {
	var f config.Flags
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f.Register(fs)
	if withReport {
		f.RegisterReport(fs)
	}
	fs.Parse(args)

	cfg, err := config.Load(&f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, false
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, false
	}
	return cfg, fs, true
}

func parseFlagArgs(args []string) ([]uint64, bool) {
	values := make([]uint64, 0, len(args))
	ok := true
	for _, a := range args {
		v, err := gmd.ParseFlags(a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			ok = false
			continue
		}
		values = append(values, v)
	}
	return values, ok
}

// decodeValues decodes values through a layout cache using the configured
// worker count. Failures are logged; ok is false if any value failed.
func decodeValues(cfg *config.Config, values []uint64) ([]layoutcache.Entry, bool) {
	cache := layoutcache.New(cfg.Decode.Checked)
	entries, err := cache.DecodeEach(values, cfg.Decode.Workers)
	logger.Debug("decoded flags",
		zap.Int("values", len(values)),
		zap.Int("distinct", cache.Len()),
		zap.Int("workers", cfg.Decode.Workers))

	for i, e := range entries {
		if e.Err != nil {
			logger.Error("decode failed", logger.Flags("flags", values[i]), zap.Error(e.Err))
			continue
		}
		logger.DecodeWarnings(logger.Log, e.Warnings)
	}
	return entries, err == nil
}

func cmdDecode(args []string) int {
	cfg, fs, ok := setup("decode", args, false)
	if !ok {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gmdtool decode [-unchecked] <flags>...")
		return 1
	}

	values, ok := parseFlagArgs(fs.Args())
	code := 0
	if !ok {
		code = 1
	}

	entries, ok := decodeValues(cfg, values)
	if !ok {
		code = 1
	}
	for i, e := range entries {
		if e.Err != nil {
			continue
		}
		fmt.Printf("Flags:  %s\n", gmd.FormatFlags(values[i]))
		fmt.Printf("Stride: %d bytes\n", e.Layout.Stride())
		for _, a := range e.Layout.Attributes() {
			fmt.Printf("  %-8s %-14s %d bytes\n", a.Name, a.Storage, a.Storage.NativeSize())
		}
		fmt.Println()
	}
	return code
}

func cmdTable(args []string) int {
	cfg, fs, ok := setup("table", args, false)
	if !ok {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gmdtool table <flags>...")
		return 1
	}

	values, ok := parseFlagArgs(fs.Args())
	code := 0
	if !ok {
		code = 1
	}

	entries, ok := decodeValues(cfg, values)
	if !ok {
		code = 1
	}
	fmt.Printf("%-18s\t%s\tStride\n", "Flags", strings.Join(gmd.ComponentCountColumns(), "\t"))
	for i, e := range entries {
		if e.Err != nil {
			continue
		}
		cols := make([]string, 0, len(gmd.ComponentCountColumns()))
		for _, n := range e.Layout.ComponentCounts() {
			cols = append(cols, fmt.Sprint(n))
		}
		fmt.Printf("%s\t%s\t%d\n", gmd.FormatFlags(values[i]), strings.Join(cols, "\t"), e.Layout.Stride())
	}
	return code
}

func cmdSurvey(args []string) int {
	cfg, fs, ok := setup("survey", args, true)
	if !ok {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gmdtool survey [-o report.yaml] <records.yaml>")
		return 1
	}

	records, err := survey.LoadRecords(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Info("loaded records", zap.String("path", fs.Arg(0)), zap.Int("records", len(records)))

	s := survey.New(layoutcache.New(cfg.Decode.Checked), survey.Options{
		CheckStride: cfg.Survey.CheckStride,
		Workers:     cfg.Decode.Workers,
	}, logger.Log)

	report, runErr := s.Run(survey.Aggregate(records))

	if err := survey.WriteTable(os.Stdout, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println()
	if err := survey.WriteFindings(os.Stdout, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Survey.ReportFile != "" {
		if err := survey.WriteReport(cfg.Survey.ReportFile, report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "\nReport written to %s\n", cfg.Survey.ReportFile)
	}

	if runErr != nil {
		return 1
	}
	return 0
}
