package config

import "flag"

// Flags holds command-line overrides. Each gmdtool subcommand binds its own
// FlagSet, so the values are not package globals.
type Flags struct {
	Config    string
	Debug     bool
	Unchecked bool
	Workers   int
	Report    string
}

// Register binds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.Unchecked, "unchecked", false, "Skip the flag bit coverage check")
	fs.IntVar(&f.Workers, "workers", 0, "Parallel decoders (0 = config value)")
}

// RegisterReport binds the survey report flag to fs.
func (f *Flags) RegisterReport(fs *flag.FlagSet) {
	fs.StringVar(&f.Report, "o", "", "Write the YAML survey report to this file")
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Unchecked {
		cfg.Decode.Checked = false
	}
	if f.Workers > 0 {
		cfg.Decode.Workers = f.Workers
	}
	if f.Report != "" {
		cfg.Survey.ReportFile = f.Report
	}
}
