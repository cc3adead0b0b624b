// Nebula CLI - the main entry point for running Nebula programs
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/nebula-lang/nebula/compiler"
	"github.com/nebula-lang/nebula/lib/codecache"
	"github.com/nebula-lang/nebula/manifest"
	"github.com/nebula-lang/nebula/pkg/bytecode"
	"github.com/nebula-lang/nebula/pkg/diag"
	"github.com/nebula-lang/nebula/pkg/image"
	"github.com/nebula-lang/nebula/vm"
)

// sysexits-style exit codes.
const (
	exitUsage   = 64
	exitNoInput = 66
	exitRuntime = 70
)

var log = commonlog.GetLogger("nebula.cli")

func main() {
	evalSrc := flag.String("e", "", "Evaluate a source string and exit")
	build := flag.Bool("build", false, "Compile to a .nbc image without running")
	output := flag.String("o", "", "Output path for -build (default: script name with .nbc extension)")
	disasm := flag.Bool("disasm", false, "Print disassembly instead of executing")
	noOpt := flag.Bool("no-opt", false, "Disable bytecode optimization")
	noCache := flag.Bool("no-cache", false, "Bypass the compile cache")
	verbose := flag.Bool("v", false, "Verbose output (info level)")
	veryVerbose := flag.Bool("vv", false, "Very verbose output (debug level)")
	trace := flag.Bool("trace", false, "Trace every VM instruction to stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nebula [options] [script.na | image.nbc]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Nebula script or compiled image. With no input, starts a REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  nebula                              # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  nebula script.na                    # Run a script\n")
		fmt.Fprintf(os.Stderr, "  nebula -e '-> 1 + 2'                # Evaluate a one-liner\n")
		fmt.Fprintf(os.Stderr, "  nebula -build -o app.nbc script.na  # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  nebula app.nbc                      # Run a compiled image\n")
		fmt.Fprintf(os.Stderr, "  nebula -disasm script.na            # Show bytecode\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		os.Exit(exitUsage)
	}
	if *evalSrc != "" && len(args) > 0 {
		fmt.Fprintln(os.Stderr, "error: -e cannot be combined with a script path")
		os.Exit(exitUsage)
	}
	if *build && *evalSrc == "" && len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: -build requires a script")
		os.Exit(exitUsage)
	}
	if *output != "" && !*build {
		fmt.Fprintln(os.Stderr, "error: -o requires -build")
		os.Exit(exitUsage)
	}

	// Manifest discovery anchors at the script's directory, or the
	// working directory for -e and the REPL.
	startDir := "."
	if len(args) == 1 {
		startDir = filepath.Dir(args[0])
	}
	m, err := manifest.FindAndLoad(startDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitRuntime)
	}
	if m == nil {
		m = manifest.Default()
	}

	configureLogging(m, *verbose, *veryVerbose)

	cfg := m.VMConfig()
	cfg.Trace = *trace

	var opts []compiler.Option
	if *noOpt {
		opts = append(opts, compiler.WithoutOptimizer())
	}

	switch {
	case *evalSrc != "":
		prog := compileOrExit([]byte(*evalSrc), opts)
		switch {
		case *disasm:
			fmt.Print(bytecode.DisassembleProgram(prog))
		case *build:
			out := *output
			if out == "" {
				out = "out.nbc"
			}
			writeImageOrExit(prog, out)
		default:
			runOrExit(prog, cfg)
		}

	case len(args) == 1:
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			printError(diag.Newf(diag.ErrFileNotFound, "%s", err))
			os.Exit(exitNoInput)
		}

		var prog *bytecode.Program
		if strings.HasSuffix(path, ".nbc") || image.IsImage(data) {
			prog, err = image.DecodeBytes(data)
			if err != nil {
				printError(err)
				os.Exit(exitRuntime)
			}
		} else {
			prog = loadSource(data, m, opts, *noCache)
		}

		switch {
		case *disasm:
			fmt.Print(bytecode.DisassembleProgram(prog))
		case *build:
			out := *output
			if out == "" {
				out = strings.TrimSuffix(path, ".na") + ".nbc"
			}
			writeImageOrExit(prog, out)
		default:
			runOrExit(prog, cfg)
		}

	default:
		runREPL(cfg, opts)
	}
}

// configureLogging maps -v/-vv and the manifest log level onto the
// commonlog backend. Flags win over the manifest.
func configureLogging(m *manifest.Manifest, verbose, veryVerbose bool) {
	verbosity := 0
	switch m.Log.Level {
	case "debug":
		verbosity = 2
	case "info":
		verbosity = 1
	}
	if verbose {
		verbosity = 1
	}
	if veryVerbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)
}

// loadSource compiles source text, going through the compile cache when
// the manifest enables one.
func loadSource(source []byte, m *manifest.Manifest, opts []compiler.Option, noCache bool) *bytecode.Program {
	var (
		cache *codecache.Cache
		key   string
	)
	if m.Cache.Enabled && !noCache {
		c, err := codecache.Open(m.Cache.Path)
		if err != nil {
			log.Warningf("cache unavailable: %v", err)
		} else {
			cache = c
			defer cache.Close()
			key = codecache.Key(source)
			if blob, ok, err := cache.Get(key); err == nil && ok {
				prog, derr := image.DecodeBytes(blob)
				if derr == nil {
					log.Debugf("cache hit %s", key[:12])
					return prog
				}
				log.Warningf("corrupt cache entry %s: %v (recompiling)", key[:12], derr)
			}
		}
	}

	prog := compileOrExit(source, opts)

	if cache != nil {
		if data, err := image.EncodeBytes(prog); err == nil {
			if err := cache.Put(key, data); err != nil {
				log.Warningf("cache store failed: %v", err)
			}
		}
	}
	return prog
}

func compileOrExit(source []byte, opts []compiler.Option) *bytecode.Program {
	prog, err := compiler.New(vm.StandardBuiltins(), opts...).Compile(string(source))
	if err != nil {
		printError(err)
		os.Exit(exitRuntime)
	}
	return prog
}

func runOrExit(prog *bytecode.Program, cfg vm.Config) {
	machine := vm.New(cfg)
	v, err := machine.Run(prog)
	if err != nil {
		printError(err)
		os.Exit(exitRuntime)
	}
	if v != vm.Nil {
		fmt.Println(machine.Format(v))
	}
}

func writeImageOrExit(prog *bytecode.Program, path string) {
	f, err := os.Create(path)
	if err != nil {
		printError(diag.Newf(diag.ErrIOFailed, "%s", err))
		os.Exit(exitRuntime)
	}
	if err := image.Encode(f, prog); err != nil {
		f.Close()
		printError(err)
		os.Exit(exitRuntime)
	}
	if err := f.Close(); err != nil {
		printError(diag.Newf(diag.ErrIOFailed, "%s", err))
		os.Exit(exitRuntime)
	}
	log.Infof("wrote %s", path)
}

// printError renders a diagnostic to stderr, with the source line when
// the error carries one.
func printError(err error) {
	var e *diag.Error
	if errors.As(err, &e) && e.Span.Line > 0 {
		fmt.Fprintf(os.Stderr, "error: %v (line %d)\n", err, e.Span.Line)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

// runREPL starts an interactive read-eval-print loop. The compiler and
// VM are shared across lines so definitions persist.
func runREPL(cfg vm.Config, opts []compiler.Option) {
	fmt.Println("Nebula REPL (type 'exit' to quit)")
	fmt.Println()

	opts = append(opts, compiler.WithExpressionResult())
	comp := compiler.New(vm.StandardBuiltins(), opts...)
	machine := vm.New(cfg)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		prog, err := comp.Compile(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		v, err := machine.Run(prog)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if v != vm.Nil {
			fmt.Printf("=> %s\n", machine.Format(v))
		}
	}

	fmt.Println()
}
