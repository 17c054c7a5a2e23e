package orchestrator

import (
	"flag"
	"fmt"
)

// Flags holds the parsed command-line surface §4.I names. An unrecognized
// flag makes ParseFlags return an error. Unrecognized holds only the
// positional arguments left after the last flag; nothing forwards them to
// subsystem option codes.
type Flags struct {
	Version           bool
	Help              bool
	ConfigFile        string
	Silent            bool
	NoLineWrap        bool
	Daemonize         bool
	NoPlugins         bool
	NoRoot            bool
	HomeDir           string
	NoNcursesWrapper  bool
	Debug             bool
	Unrecognized      []string
}

// ParseFlags parses args (normally os.Args[1:]) into a Flags value. It
// uses the standard library flag package rather than a long-option
// parsing library, per the Design Notes: the teacher's own CLI surface is
// HTTP-only and no other domain-stack dependency in this spec needed a
// flags library, so introducing one here would have no other home.
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("kismet", flag.ContinueOnError)
	fs.Usage = func() {}

	var f Flags
	fs.BoolVar(&f.Version, "version", false, "print version and exit")
	fs.BoolVar(&f.Version, "v", false, "print version and exit")
	fs.BoolVar(&f.Help, "help", false, "print usage and exit")
	fs.BoolVar(&f.Help, "h", false, "print usage and exit")
	fs.StringVar(&f.ConfigFile, "config-file", "", "override config path")
	fs.StringVar(&f.ConfigFile, "f", "", "override config path")
	fs.BoolVar(&f.Silent, "silent", false, "suppress stdout formatter after setup")
	fs.BoolVar(&f.Silent, "s", false, "suppress stdout formatter after setup")
	fs.BoolVar(&f.NoLineWrap, "no-line-wrap", false, "accepted; output is never wrapped")
	fs.BoolVar(&f.Daemonize, "daemonize", false, "drop the stdout client (does not fork)")
	fs.BoolVar(&f.NoPlugins, "no-plugins", false, "skip plugin scan/activate")
	fs.BoolVar(&f.NoRoot, "no-root", false, "do not launch the capture helper")
	fs.StringVar(&f.HomeDir, "homedir", "", "override user home")
	fs.BoolVar(&f.NoNcursesWrapper, "no-ncurses-wrapper", false, "skip the console wrapper")
	fs.BoolVar(&f.Debug, "debug", false, "skip wrapper + crash handlers")

	if err := fs.Parse(args); err != nil {
		return f, fmt.Errorf("orchestrator: parse flags: %w", err)
	}
	f.Unrecognized = fs.Args()
	return f, nil
}

// PrebootFlags is the throwaway first-pass parse cmd/kismet uses only to
// decide whether to re-exec under kismet-console, before the real parse
// runs. It recognizes exactly the two flags that decision depends on and
// silently ignores everything else.
type PrebootFlags struct {
	NoNcursesWrapper bool
	Debug            bool
}

// ParsePrebootFlags scans args for --no-ncurses-wrapper/--debug without
// erroring on any other flag, since the real parse (ParseFlags) hasn't
// run yet and unknown long options are expected at this stage.
func ParsePrebootFlags(args []string) PrebootFlags {
	fs := flag.NewFlagSet("kismet-preboot", flag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetOutput(discardWriter{})

	var f PrebootFlags
	fs.BoolVar(&f.NoNcursesWrapper, "no-ncurses-wrapper", false, "")
	fs.BoolVar(&f.Debug, "debug", false, "")

	// Ignore unknown flags by scanning manually: flag.Parse stops at the
	// first unrecognized flag, so a bare recognize-and-continue scan is
	// used instead of relying on fs.Parse's all-or-nothing behavior.
	for _, arg := range args {
		switch arg {
		case "--no-ncurses-wrapper":
			f.NoNcursesWrapper = true
		case "--debug":
			f.Debug = true
		}
	}
	return f
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
