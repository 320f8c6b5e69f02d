package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Connection kinds.
const (
	KindAPI = "api"
	KindJ1  = "j1"
)

// Step operations.
const (
	OpCall           = "call"
	OpCallSuccess    = "call_success"
	OpCallError      = "call_error"
	OpCallMatch      = "call_match"
	OpExpectEvent    = "expect_event"
	OpWaitCompletion = "wait_completion"
	OpWaitCalls      = "wait_calls"
	OpWaitEvents     = "wait_events"
	OpWaitCount      = "wait_count"
	OpSessionCreate  = "session_create"
	OpSessionRemove  = "session_remove"
	OpTokenCreate    = "token_create"
	OpTokenRemove    = "token_remove"
	OpSetSession     = "set_session"
	OpSetToken       = "set_token"
	OpUnexpected     = "unexpected"
	OpDescribe       = "describe"
	OpDisconnect     = "disconnect"
)

// Scenario is a test script.
type Scenario struct {
	// Name identifies the scenario in logs and journals.
	Name string `yaml:"name" validate:"required"`

	Description string `yaml:"description,omitempty"`

	// Options are merged into the diagnostics settings before the run:
	// "stop-on-failure" (bool) and "mode" (tap, old or success).
	Options map[string]any `yaml:"options,omitempty"`

	Connections []Connection `yaml:"connections" validate:"required,min=1,dive"`

	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Connection declares a connection opened before the first step.
type Connection struct {
	Name string `yaml:"name" validate:"required"`
	Kind string `yaml:"kind" validate:"required,oneof=api j1"`
	URI  string `yaml:"uri" validate:"required"`
}

// Step is one operation of the script.
//
// Fields are interpreted per operation:
//
//	call, call_success, call_error   conn, api (j1 only), verb, args
//	call_match                       same, plus match and notmatch
//	expect_event                     count (default 1), or conn with
//	                                 event (name) and match (data pattern)
//	wait_count                       count
//	session_create, token_create     conn, id, name
//	session_remove, token_remove     conn, id
//	set_session, set_token           conn, id (0 clears)
//	unexpected                       conn, enable (default true)
//	describe, disconnect             conn
//
// Wait operations accept a timeout such as "5s".
type Step struct {
	Op       string `yaml:"op" validate:"required,oneof=call call_success call_error call_match expect_event wait_completion wait_calls wait_events wait_count session_create session_remove token_create token_remove set_session set_token unexpected describe disconnect"`
	Conn     string `yaml:"conn,omitempty"`
	API      string `yaml:"api,omitempty"`
	Verb     string `yaml:"verb,omitempty"`
	Event    string `yaml:"event,omitempty"`
	Args     any    `yaml:"args,omitempty"`
	Match    any    `yaml:"match,omitempty"`
	NotMatch any    `yaml:"notmatch,omitempty"`
	Count    int    `yaml:"count,omitempty" validate:"min=0"`
	ID       int    `yaml:"id,omitempty" validate:"min=0"`
	Name     string `yaml:"name,omitempty"`
	Enable   *bool  `yaml:"enable,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

// timeout returns the parsed step timeout, zero when unset.
func (s Step) timeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return d, nil
}

// Load reads a scenario file. The format is chosen by extension: .cue files
// are evaluated with CUE, anything else is parsed as YAML.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".cue") {
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
	}
	return Parse(data)
}

// Parse parses and validates a YAML (or JSON) scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if err := Validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}
