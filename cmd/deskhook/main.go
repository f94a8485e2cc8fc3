package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/1broseidon/deskhook/internal/config"
	"github.com/1broseidon/deskhook/internal/logging"
	"github.com/1broseidon/deskhook/internal/platform"
	"github.com/1broseidon/deskhook/internal/winstack"
	"github.com/1broseidon/deskhook/internal/winstyle"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runRun(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "icons":
		os.Exit(runIcons(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deskhook <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Attach to an overlay window and drive its input (foreground)")
	fmt.Fprintln(w, "  windows             List the tracked window stack, front to back")
	fmt.Fprintln(w, "  icons               List desktop icon positions")
	fmt.Fprintln(w, "  icons hittest X Y   Show the icon under a screen point")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'deskhook <command> --help' for command-specific options.")
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  deskhook config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  deskhook config print [--path PATH] [--defaults]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: <config dir>/deskhook/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: <config dir>/deskhook/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			var err error
			if cfg, err = loadConfig(*path); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:     cfg.LogLevel,
		FilePath:  cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
		MaxFiles:  cfg.LogMaxFiles,
	})
}

func styleMode(m config.Mode) winstyle.Mode {
	if m == config.ModeBehindIcons {
		return winstyle.ModeBehindIcons
	}
	return winstyle.ModeTransparent
}

func trackerOptions(cfg *config.Config, logger *slog.Logger) winstack.Options {
	return winstack.Options{
		MinWindowSize:   cfg.Tracker.MinWindowSize,
		TitleDenylist:   cfg.Tracker.TitleDenylist,
		ProcessDenylist: cfg.Tracker.ProcessDenylist,
		RefreshInterval: cfg.Tracker.RefreshInterval,
		Logger:          logger,
	}
}

// parseRect parses "left,top,right,bottom".
func parseRect(s string) (platform.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return platform.Rect{}, fmt.Errorf("rect %q: want left,top,right,bottom", s)
	}
	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return platform.Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = n
	}
	r := platform.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	if r.Right < r.Left || r.Bottom < r.Top {
		return platform.Rect{}, errors.New("rect: right/bottom must not be less than left/top")
	}
	return r, nil
}

func parsePoint(xs, ys string) (platform.Point, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return platform.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return platform.Point{}, fmt.Errorf("y: %w", err)
	}
	return platform.Point{X: x, Y: y}, nil
}

func terminalWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// formatWindows renders the snapshot as a table. Titles are cut so each row
// fits width; width 0 means no limit.
func formatWindows(w io.Writer, windows []winstack.Window, width int) {
	header := fmt.Sprintf("%-3s %-10s %-24s %-2s %-24s ", "Z", "HWND", "RECT", "FG", "PROCESS")
	fmt.Fprintln(w, header+"TITLE")
	for _, win := range windows {
		fg := ""
		if win.Foreground {
			fg = "*"
		}
		rect := fmt.Sprintf("%d,%d,%d,%d", win.Rect.Left, win.Rect.Top, win.Rect.Right, win.Rect.Bottom)
		row := fmt.Sprintf("%-3d %-10s %-24s %-2s %-24s ", win.Z, fmt.Sprintf("%#x", uintptr(win.Handle)), rect, fg, win.Process)
		title := win.Title
		if width > 0 {
			title = truncate(title, width-len(row))
		}
		fmt.Fprintln(w, row+title)
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
