package main

import (
	"context"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/hupe1980/pmem/pool"
)

// env is the process environment as a map.
type env map[string]string

// cmdContext carries what every command needs.
type cmdContext struct {
	ctx    context.Context
	out    io.Writer
	errOut io.Writer
	cfg    Config
	env    env
	logger *pool.Logger
}

type command struct {
	name  string
	usage string
	help  string
	run   func(c *cmdContext, args []string) error
}

var commands = []command{
	{"create", "create [--size=N] <pool>", "Create an empty pool file.", cmdCreate},
	{"info", "info <pool>", "Print the pool header.", cmdInfo},
	{"recover", "recover <pool>", "Roll back an interrupted transaction.", cmdRecover},
	{"dump", "dump <pool> <off> <n> <type>", "Print n elements of type at offset off.", cmdDump},
	{"backup", "backup [--io-limit=N] <pool> <name>", "Copy the committed pool image to the backup store.", cmdBackup},
	{"restore", "restore <name> <pool>", "Replace the pool file with a backup.", cmdRestore},
	{"list", "list [prefix]", "List backups in the backup store.", cmdList},
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func fprintf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, "Usage: pmemctl [--config=<file>] [--log-level=<level>] <command> [args]")
	fprintln(w, "")
	fprintln(w, "Commands:")
	for _, c := range commands {
		fprintf(w, "  %-40s %s\n", c.usage, c.help)
	}
}

func run(ctx context.Context, out, errOut io.Writer, args []string, environ env) int {
	flagSet := flag.NewFlagSet("pmemctl", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(false)

	configPath := flagSet.String("config", environ[ConfigEnv], "JSONC config file")
	logLevel := flagSet.String("log-level", "", "Log level (debug|info|warn|error)")
	help := flagSet.BoolP("help", "h", false, "Show help")

	if err := flagSet.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		return 2
	}
	if *help || flagSet.NArg() == 0 {
		printUsage(out)
		if *help {
			return 0
		}
		return 2
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if flagSet.Changed("log-level") {
		if _, err := parseLevel(*logLevel); err != nil {
			fprintln(errOut, "error:", err)
			return 2
		}
		cfg.LogLevel = *logLevel
	}

	name, rest := flagSet.Arg(0), flagSet.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		cc := &cmdContext{
			ctx:    ctx,
			out:    out,
			errOut: errOut,
			cfg:    cfg,
			env:    environ,
			logger: cfg.Logger(errOut),
		}
		if err := c.run(cc, rest); err != nil {
			fprintln(errOut, "error:", err)
			if isUsage(err) {
				fprintln(errOut, "usage: pmemctl", c.usage)
				return 2
			}
			return 1
		}
		return 0
	}

	fprintf(errOut, "error: unknown command %q\n", name)
	printUsage(errOut)
	return 2
}
