// Vine CLI - assembles, disassembles and runs Vine programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/vine/host"
	"github.com/chazu/vine/manifest"
	"github.com/chazu/vine/pkg/asm"
	"github.com/chazu/vine/pkg/bytecode"
	"github.com/chazu/vine/vm"
)

var log = commonlog.GetLogger("vine.cli")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code: the low byte of
// A after a clean halt, 1 when the program cannot be loaded and 2 when it
// faults.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("vine", flag.ContinueOnError)
	flags.SetOutput(stderr)
	output := flags.String("o", "", "Assemble to this .vbc file instead of running")
	disasm := flags.Bool("d", false, "Print the disassembled program instead of running")
	expand := flags.Bool("expand", false, "Rewrite derived instructions into their expansions")
	trace := flags.Bool("trace", false, "Log every executed instruction")
	profile := flags.Bool("profile", false, "Print instruction and call counts to stderr after the run")
	verbose := flags.Bool("v", false, "Verbose logging")
	chdir := flags.String("C", ".", "Directory to search for vine.toml")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: vine [options] [file.vna|file.vbc] [program args...]\n\n")
		fmt.Fprintf(stderr, "Runs a Vine program. Without a file, runs the entry named in vine.toml.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  vine fib.vna               # Assemble and run\n")
		fmt.Fprintf(stderr, "  vine -o fib.vbc fib.vna    # Assemble to a program file\n")
		fmt.Fprintf(stderr, "  vine -d fib.vbc            # Disassemble\n")
	}
	if err := flags.Parse(args); err != nil {
		return 1
	}

	man, err := manifest.FindAndLoad(*chdir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if man == nil {
		dir, _ := filepath.Abs(*chdir)
		man = manifest.Default(dir)
	}

	verbosity := man.Log.Verbosity
	if *verbose {
		verbosity += 2
	}
	var logPath *string
	if p := man.LogPath(); p != "" {
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	path := man.EntryPath()
	var progArgs []string
	if flags.NArg() > 0 {
		path = flags.Arg(0)
		progArgs = flags.Args()[1:]
	}
	if path == "" {
		flags.Usage()
		return 1
	}

	cfg := man.MachineConfig()
	cfg.Trace = cfg.Trace || *trace
	cfg.Profile = cfg.Profile || *profile

	prog, err := loadProgram(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *expand || (!cfg.Derived && bytecode.HasDerived(prog)) {
		if prog, err = bytecode.Expand(prog); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	switch {
	case *output != "":
		data, err := bytecode.Encode(prog)
		if err == nil {
			err = os.WriteFile(*output, data, 0644)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		log.Infof("wrote %s (%d bytes)", *output, len(data))
		return 0
	case *disasm:
		fmt.Fprint(stdout, bytecode.Disassemble(prog))
		return 0
	}

	features, err := man.HostFeatures()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	h := host.NewOS(append(append([]string(nil), man.Host.Args...), progArgs...), features).
		WithStreams(stdin, stdout, stderr)

	m, err := vm.Load(prog, h, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", path, err)
		return 1
	}
	if err := m.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", path, err)
		if !vm.IsFault(err) {
			return 1
		}
	}
	if p := m.Profiler(); p != nil {
		p.Report(stderr, m.Program(), 20)
	}
	return m.ExitStatus()
}

// loadProgram assembles a .vna source file or decodes a .vbc program file.
func loadProgram(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vna":
		p, err := asm.Assemble(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	case ".vbc":
		p, err := bytecode.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	default:
		return nil, errors.New(path + ": unknown file type (want .vna or .vbc)")
	}
}
