package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes a sync conformance run: local writes and remote
// behaviour to set up, a flow of passes and operator actions, and
// assertions over the resulting trace and database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxRetries overrides the retry budget. Zero keeps the default.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Setup runs before the flow. Setup steps must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow is the main sequence. Steps may carry expectations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// ActionStep is one step of the setup section.
type ActionStep struct {
	// Action is one of the Action* names.
	Action string `yaml:"action"`

	// Args are decoded into the action's argument struct.
	Args map[string]interface{} `yaml:"args"`
}

// FlowStep is one step of the main flow.
type FlowStep struct {
	// Invoke is one of the Action* names.
	Invoke string `yaml:"invoke"`

	// Args are decoded into the action's argument struct.
	Args map[string]interface{} `yaml:"args"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Error is a substring the step error must contain. Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`

	// Pass is a subset of pass summary fields (processed, succeeded,
	// failed, dead, conflicts, deferred, skipped). Only valid on sync.
	Pass map[string]interface{} `yaml:"pass,omitempty"`

	// Count is the expected count returned by retry_failed, purge and
	// refresh.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a remote call with op and args appears
	// - "trace_order": the ops' first calls appear in order
	// - "trace_count": op was called exactly Count times
	// - "final_state": a table row matching Where has the Expect values
	Type string `yaml:"type"`

	// Action is the remote op (used by trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched against ref, server_id and error of the call
	// (used by trace_contains). Subset match.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies equality filters (used by final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of calls (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected op order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields and
// missing required fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}

	for i, step := range s.Setup {
		if step.Action == "" {
			return fmt.Errorf("setup[%d]: action is required", i)
		}
		if _, ok := actions[step.Action]; !ok {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if _, ok := actions[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Pass != nil && step.Invoke != ActionSync {
			return fmt.Errorf("flow[%d].expect: pass is only valid for %s", i, ActionSync)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
