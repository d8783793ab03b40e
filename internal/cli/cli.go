package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maax3v3/colormix/internal/config"
)

// Subcommands.
const (
	CommandServe   = "serve"
	CommandAnalyze = "analyze"
)

// ErrHelp is returned when usage was requested and printed.
var ErrHelp = flag.ErrHelp

// Command is a parsed command line.
type Command struct {
	Name    string
	Config  *config.Config
	Analyze AnalyzeOptions

	// WriteConfig, when set, is where the effective configuration is
	// written instead of running the command.
	WriteConfig string
}

// AnalyzeOptions holds the arguments of the analyze subcommand.
type AnalyzeOptions struct {
	InPath          string
	X, Y            float64 // surface coordinates of the sample point
	HasPoint        bool    // false analyzes the whole image
	CalibrationPath string
	CardPath        string // optional swatch card output (.png)
	MagnifierPath   string // optional magnifier output (.png)
	Save            bool
	ClientName      string
}

// Parse parses CLI arguments (without the program name) and returns a
// validated Command. Values from --config are overridden by explicit flags.
func Parse(args []string) (Command, error) {
	return parse(args, os.Stderr)
}

func parse(args []string, stderr io.Writer) (Command, error) {
	if len(args) == 0 {
		usage(stderr)
		return Command{}, errors.New("a command is required: serve or analyze")
	}
	name, rest := args[0], args[1:]
	switch name {
	case CommandServe, CommandAnalyze:
	case "-h", "--help", "help":
		usage(stderr)
		return Command{}, ErrHelp
	default:
		usage(stderr)
		return Command{}, fmt.Errorf("unknown command %q", name)
	}

	fs := flag.NewFlagSet("colormix "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	defaults := config.DefaultConfig()
	configPath := fs.String("config", "", "Path to a JSON config file")
	logLevel := fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	dataDir := fs.String("data-dir", defaults.DataDir, "Directory for history and calibration (empty = in memory)")
	model := fs.String("model", defaults.Model, "Vision model name")
	language := fs.String("language", defaults.Language, "Language of color names in results")
	width := fs.Int("width", defaults.ContainerWidth, "Container width the image is fitted to, in pixels")
	writeConfig := fs.String("write-config", "", "Write the effective configuration to this JSON file and exit")

	var addr *string
	var opts AnalyzeOptions
	switch name {
	case CommandServe:
		addr = fs.String("addr", defaults.Addr, "HTTP listen address")
	case CommandAnalyze:
		fs.StringVar(&opts.InPath, "in", "", "Path to input image (required, supports PNG, JPEG, WEBP)")
		fs.Float64Var(&opts.X, "x", 0, "X coordinate of the sample point on the fitted image")
		fs.Float64Var(&opts.Y, "y", 0, "Y coordinate of the sample point on the fitted image")
		fs.StringVar(&opts.CalibrationPath, "calibration", "", "Path to a white reference image")
		fs.StringVar(&opts.CardPath, "card", "", "Write a swatch card of the first result (.png)")
		fs.StringVar(&opts.MagnifierPath, "magnifier", "", "Write the magnifier view at the sample point (.png)")
		fs.BoolVar(&opts.Save, "save", false, "Save the first result to the history")
		fs.StringVar(&opts.ClientName, "client", "", "Client name stored with a saved result")
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: colormix %s [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
		if name == CommandAnalyze {
			fmt.Fprintf(stderr, "\nExample:\n  colormix analyze --in=photo.jpg --x=200 --y=100 --width=400 --save\n")
		}
	}

	if err := fs.Parse(rest); err != nil {
		return Command{}, err
	}
	if fs.NArg() > 0 {
		return Command{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return Command{}, fmt.Errorf("--config: %w", err)
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["log-level"] || *configPath == "" {
		cfg.LogLevel = *logLevel
	}
	if set["data-dir"] || *configPath == "" {
		cfg.DataDir = *dataDir
	}
	if set["model"] || *configPath == "" {
		cfg.Model = *model
	}
	if set["language"] || *configPath == "" {
		cfg.Language = *language
	}
	if set["width"] || *configPath == "" {
		cfg.ContainerWidth = *width
	}
	if addr != nil && (set["addr"] || *configPath == "") {
		cfg.Addr = *addr
	}

	if *width <= 0 {
		return Command{}, fmt.Errorf("--width must be > 0, got %d", *width)
	}
	if err := cfg.Validate(); err != nil {
		return Command{}, fmt.Errorf("config: %w", err)
	}
	cfg.LoadAPIKey()

	cmd := Command{Name: name, Config: cfg, WriteConfig: *writeConfig}
	if name == CommandAnalyze && cmd.WriteConfig == "" {
		opts.HasPoint = set["x"] || set["y"]
		if err := validateAnalyze(opts); err != nil {
			return Command{}, err
		}
		cmd.Analyze = opts
	}
	return cmd, nil
}

func validateAnalyze(o AnalyzeOptions) error {
	if o.InPath == "" {
		return fmt.Errorf("--in is required")
	}
	if o.HasPoint && (o.X < 0 || o.Y < 0) {
		return fmt.Errorf("--x and --y must be >= 0, got (%g, %g)", o.X, o.Y)
	}
	if o.MagnifierPath != "" && !o.HasPoint {
		return fmt.Errorf("--magnifier needs a sample point (--x, --y)")
	}
	outputs := []struct{ flag, path string }{
		{"card", o.CardPath},
		{"magnifier", o.MagnifierPath},
	}
	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(out.path)); ext != ".png" {
			return fmt.Errorf("--%s must be a .png file, got %q", out.flag, ext)
		}
	}
	if o.ClientName != "" && !o.Save {
		return fmt.Errorf("--client requires --save")
	}
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: colormix <command> [options]\n\nCommands:\n")
	fmt.Fprintf(w, "  serve     Run the HTTP server\n")
	fmt.Fprintf(w, "  analyze   Analyze a photo, optionally at one point\n")
	fmt.Fprintf(w, "\nRun 'colormix <command> -h' for command options.\n")
}
