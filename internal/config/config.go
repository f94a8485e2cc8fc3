package config

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the overlay window is presented. It is fixed at startup.
type Mode string

const (
	// ModeTransparent keeps the overlay as a layered, non-activating popup in
	// the normal Z order, toggling click-through per pointer position.
	ModeTransparent Mode = "transparent"
	// ModeBehindIcons parents the overlay under the shell's WorkerW so it
	// draws above the wallpaper and below the desktop icons.
	ModeBehindIcons Mode = "behind-icons"
)

// TrackerConfig tunes the window stack snapshot.
type TrackerConfig struct {
	// RefreshInterval is the wall-clock period between window enumerations.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// MinWindowSize rejects windows narrower or shorter than this many pixels.
	MinWindowSize int `yaml:"min_window_size"`
	// TitleDenylist rejects windows whose title contains any entry.
	TitleDenylist []string `yaml:"title_denylist"`
	// ProcessDenylist rejects cloaked windows owned by a process whose
	// executable name matches any pattern (path.Match syntax, case-insensitive).
	ProcessDenylist []string `yaml:"process_denylist"`
}

// CaptureConfig bounds how long a pointer capture decision is reused.
type CaptureConfig struct {
	Radius float64       `yaml:"radius"`  // pixels
	MaxAge time.Duration `yaml:"max_age"` // about one frame at 60 Hz
}

// IconsConfig controls desktop icon awareness.
type IconsConfig struct {
	// Enabled turns the shell icon bridge on/off (default: true)
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Config is the effective deskhook configuration.
type Config struct {
	Mode         Mode          `yaml:"mode"`
	LogLevel     string        `yaml:"log_level"`
	LogFile      string        `yaml:"log_file,omitempty"`
	LogMaxSizeMB int           `yaml:"log_max_size_mb"`
	LogMaxFiles  int           `yaml:"log_max_files"`
	TickInterval time.Duration `yaml:"tick_interval"`

	Tracker TrackerConfig `yaml:"tracker"`
	Capture CaptureConfig `yaml:"capture"`
	Icons   IconsConfig   `yaml:"icons"`
}

// ValidationError points at the offending YAML path.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GetEnabled returns the effective value, defaulting to true.
func (i *IconsConfig) GetEnabled() bool {
	if i == nil || i.Enabled == nil {
		return true
	}
	return *i.Enabled
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeTransparent,
		LogLevel:     "info",
		LogMaxSizeMB: 10,
		LogMaxFiles:  3,
		TickInterval: 16 * time.Millisecond,
		Tracker: TrackerConfig{
			RefreshInterval: 500 * time.Millisecond,
			MinWindowSize:   50,
			TitleDenylist:   defaultTitleDenylist(),
			ProcessDenylist: defaultProcessDenylist(),
		},
		Capture: CaptureConfig{
			Radius: 3,
			MaxAge: 16 * time.Millisecond,
		},
	}
}

// The text input host keeps an invisible full-screen frame around; screen
// recorders and settings hosts do similar things.
func defaultTitleDenylist() []string {
	return []string{"Windows Input Experience"}
}

func defaultProcessDenylist() []string {
	return []string{
		"textinputhost.exe",
		"applicationframehost.exe",
		"systemsettings.exe",
	}
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeTransparent, ModeBehindIcons:
	default:
		return &ValidationError{Path: "mode", Err: fmt.Errorf("mode must be one of: %s, %s", ModeTransparent, ModeBehindIcons)}
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if c.LogMaxSizeMB <= 0 {
		return &ValidationError{Path: "log_max_size_mb", Err: fmt.Errorf("log_max_size_mb must be > 0")}
	}
	if c.LogMaxFiles < 0 {
		return &ValidationError{Path: "log_max_files", Err: fmt.Errorf("log_max_files must be >= 0")}
	}
	if c.TickInterval <= 0 {
		return &ValidationError{Path: "tick_interval", Err: fmt.Errorf("tick_interval must be > 0")}
	}
	if c.Tracker.RefreshInterval <= 0 {
		return &ValidationError{Path: "tracker.refresh_interval", Err: fmt.Errorf("refresh_interval must be > 0")}
	}
	if c.Tracker.MinWindowSize < 0 {
		return &ValidationError{Path: "tracker.min_window_size", Err: fmt.Errorf("min_window_size must be >= 0")}
	}
	for i, entry := range c.Tracker.TitleDenylist {
		if strings.TrimSpace(entry) == "" {
			return &ValidationError{Path: fmt.Sprintf("tracker.title_denylist[%d]", i), Err: fmt.Errorf("entry must not be empty")}
		}
	}
	for i, entry := range c.Tracker.ProcessDenylist {
		if strings.TrimSpace(entry) == "" {
			return &ValidationError{Path: fmt.Sprintf("tracker.process_denylist[%d]", i), Err: fmt.Errorf("entry must not be empty")}
		}
	}
	if c.Capture.Radius < 0 {
		return &ValidationError{Path: "capture.radius", Err: fmt.Errorf("radius must be >= 0")}
	}
	if c.Capture.MaxAge < 0 {
		return &ValidationError{Path: "capture.max_age", Err: fmt.Errorf("max_age must be >= 0")}
	}
	return nil
}
