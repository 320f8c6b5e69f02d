package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Mode selects how assertions are reported.
type Mode int

const (
	// ModeTAP emits Test Anything Protocol lines.
	ModeTAP Mode = iota
	// ModeOld only prints the final tally.
	ModeOld
	// ModeSuccess prints SUCCESS/FAILURE lines and the final tally.
	ModeSuccess
)

var modeNames = map[Mode]string{
	ModeTAP:     "tap",
	ModeOld:     "old",
	ModeSuccess: "success",
}

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return modeNames[ModeTAP]
}

// ParseMode maps a configuration name to a Mode.
// Unknown names select ModeTAP.
func ParseMode(name string) Mode {
	for m, n := range modeNames {
		if n == name {
			return m
		}
	}
	return ModeTAP
}

// Exit codes reported by Terminate.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Recorder receives every assertion after it has been reported.
// The journal implements it.
type Recorder interface {
	Record(seq int, ok bool, description string) error
}

// Settings is the effective configuration.
type Settings struct {
	StopOnFailure bool
	Mode          Mode
}

// Map renders s with the configuration keys used by scripts.
func (s Settings) Map() map[string]any {
	return map[string]any{
		"stop-on-failure": s.StopOnFailure,
		"mode":            s.Mode.String(),
	}
}

// Config is a partial update of Settings. Nil fields are left unchanged.
type Config struct {
	StopOnFailure *bool
	Mode          *string
}

// ParseConfig reads a Config from its map form
// {"stop-on-failure": bool, "mode": "tap"|"old"|"success"}.
func ParseConfig(m map[string]any) (Config, error) {
	var cfg Config
	if v, ok := m["stop-on-failure"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Config{}, fmt.Errorf("stop-on-failure: expected bool, got %T", v)
		}
		cfg.StopOnFailure = &b
	}
	if v, ok := m["mode"]; ok {
		s, ok := v.(string)
		if !ok {
			return Config{}, fmt.Errorf("mode: expected string, got %T", v)
		}
		cfg.Mode = &s
	}
	return cfg, nil
}

// Diagnostics accumulates assertion outcomes.
type Diagnostics struct {
	tests    int
	success  int
	failure  int
	settings Settings

	out      io.Writer
	exit     func(code int)
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Diagnostics.
type Option func(*Diagnostics)

// WithWriter sets the report destination (default os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(d *Diagnostics) {
		d.out = w
	}
}

// WithExit replaces os.Exit, used by Terminate and stop-on-failure.
func WithExit(fn func(code int)) Option {
	return func(d *Diagnostics) {
		d.exit = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Diagnostics) {
		d.logger = l
	}
}

// WithRecorder forwards every assertion to r.
func WithRecorder(r Recorder) Option {
	return func(d *Diagnostics) {
		d.recorder = r
	}
}

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(d *Diagnostics) {
		d.settings = s
	}
}

// New creates a Diagnostics in tap mode with stop-on-failure disabled.
func New(opts ...Option) *Diagnostics {
	d := &Diagnostics{
		settings: Settings{Mode: ModeTAP},
		out:      os.Stdout,
		exit:     os.Exit,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Options merges cfg into the settings and returns the effective settings.
func (d *Diagnostics) Options(cfg Config) Settings {
	if cfg.StopOnFailure != nil {
		d.settings.StopOnFailure = *cfg.StopOnFailure
	}
	if cfg.Mode != nil {
		d.settings.Mode = ParseMode(*cfg.Mode)
	}
	return d.settings
}

// Settings returns the effective settings.
func (d *Diagnostics) Settings() Settings {
	return d.settings
}

// Success records a passed assertion described by info.
func (d *Diagnostics) Success(info any) {
	d.success++
	d.tests++
	desc := Describe(info)

	switch d.settings.Mode {
	case ModeTAP:
		fmt.Fprintf(d.out, "ok %d %s\n", d.tests, desc)
	case ModeSuccess:
		fmt.Fprintf(d.out, "SUCCESS: %s\n", desc)
	}
	d.record(true, desc)
}

// Failure records a failed assertion described by info.
// With stop-on-failure set, the process exits with ExitFailure right after
// the failure is reported.
func (d *Diagnostics) Failure(info any) {
	d.failure++
	d.tests++
	desc := Describe(info)

	switch d.settings.Mode {
	case ModeTAP:
		fmt.Fprintf(d.out, "not ok %d %s\n", d.tests, desc)
	case ModeOld, ModeSuccess:
		fmt.Fprintf(d.out, "FAILURE: %s\n", desc)
	}
	d.record(false, desc)

	if d.settings.StopOnFailure {
		d.logger.Info("stopping on first failure", "test", d.tests)
		d.exit(ExitFailure)
	}
}

// Assert dispatches to Success or Failure.
func (d *Diagnostics) Assert(ok bool, info any) {
	if ok {
		d.Success(info)
	} else {
		d.Failure(info)
	}
}

// Counts returns the number of assertions, successes and failures so far.
func (d *Diagnostics) Counts() (tests, success, failure int) {
	return d.tests, d.success, d.failure
}

// ExitCode is ExitSuccess when no assertion failed.
func (d *Diagnostics) ExitCode() int {
	if d.failure == 0 {
		return ExitSuccess
	}
	return ExitFailure
}

// Terminate prints the closing lines of the report and exits with ExitCode.
// The code is also returned for exit functions that do not end the process.
func (d *Diagnostics) Terminate() int {
	switch d.settings.Mode {
	case ModeTAP:
		fmt.Fprintf(d.out, "1..%d\n", d.tests)
	case ModeOld, ModeSuccess:
		total := d.success + d.failure
		fmt.Fprintf(d.out, "success: %d / %d\n", d.success, total)
		fmt.Fprintf(d.out, "failure: %d / %d\n", d.failure, total)
	}

	code := d.ExitCode()
	d.logger.Debug("terminating", "tests", d.tests, "failures", d.failure, "code", code)
	d.exit(code)
	return code
}

func (d *Diagnostics) record(ok bool, desc string) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(d.tests, ok, desc); err != nil {
		d.logger.Warn("failed to record assertion", "test", d.tests, "error", err)
	}
}
