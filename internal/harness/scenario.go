package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Scenario defines a store test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Persist runs the scenario with an in-memory SQLite ledger so that
	// replay_matches assertions can rebuild the store from it.
	Persist bool `yaml:"persist,omitempty"`

	// DeletePolicy overrides the store's delete policy ("idempotent" or "strict").
	DeletePolicy string `yaml:"delete_policy,omitempty"`

	// Setup steps establish initial state. They must succeed and are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps are executed in order and recorded in the trace.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation against the store.
type Step struct {
	Op       string         `yaml:"op"`
	Target   string         `yaml:"target,omitempty"`
	Version  int            `yaml:"version,omitempty"`
	IfMatch  int            `yaml:"if_match,omitempty"`
	Query    string         `yaml:"query,omitempty"`
	Resource map[string]any `yaml:"resource,omitempty"`

	// Checkpoint records the store digest after the step under this name.
	Checkpoint string `yaml:"checkpoint,omitempty"`

	// Expect validates the step. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step. Unset fields are not checked.
type Expect struct {
	// Outcome is "ok" or an OperationOutcome issue code such as "not-found".
	// Defaults to "ok".
	Outcome    string   `yaml:"outcome,omitempty"`
	Version    int      `yaml:"version,omitempty"`
	Total      *int     `yaml:"total,omitempty"`
	IDs        []string `yaml:"ids,omitempty"`
	Statuses   []string `yaml:"statuses,omitempty"`
	EntryIndex *int     `yaml:"entry_index,omitempty"`
	// Body is matched as a subset of the returned resource.
	Body map[string]any `yaml:"body,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	Type        string         `yaml:"type"`
	Target      string         `yaml:"target,omitempty"`
	Version     int            `yaml:"version,omitempty"`
	Count       int            `yaml:"count,omitempty"`
	Checkpoints []string       `yaml:"checkpoints,omitempty"`
	Expect      map[string]any `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpCreate     = "create"
	OpRead       = "read"
	OpVRead      = "vread"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpHistory    = "history"
	OpSearch     = "search"
	OpEverything = "everything"
	OpDocument   = "document"
	OpBundle     = "bundle"
)

// Assertion types.
const (
	AssertCurrentVersion = "current_version"
	AssertHistoryCount   = "history_count"
	AssertNotFound       = "not_found"
	AssertResource       = "resource"
	AssertDigestEqual    = "digest_equal"
	AssertReplayMatches  = "replay_matches"
)

// OutcomeOK is the outcome of a step that returned no error.
const OutcomeOK = "ok"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.DeletePolicy != "" {
		if _, err := store.ParseDeletePolicy(s.DeletePolicy); err != nil {
			return err
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	checkpoints := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Checkpoint != "" {
			if checkpoints[step.Checkpoint] {
				return fmt.Errorf("steps[%d]: duplicate checkpoint %q", i, step.Checkpoint)
			}
			checkpoints[step.Checkpoint] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, s.Persist, checkpoints); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

var stepOps = []string{
	OpCreate, OpRead, OpVRead, OpUpdate, OpDelete, OpHistory,
	OpSearch, OpEverything, OpDocument, OpBundle,
}

func validateStep(step Step) error {
	if !slices.Contains(stepOps, step.Op) {
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.Op {
	case OpCreate, OpSearch:
		if !fhir.ValidResourceType(step.Target) {
			return fmt.Errorf("%s requires a resource type target, got %q", step.Op, step.Target)
		}
	case OpRead, OpVRead, OpUpdate, OpDelete, OpEverything, OpDocument:
		if _, err := fhir.ParseIdentity(step.Target); err != nil {
			return fmt.Errorf("%s requires a Type/id target: %w", step.Op, err)
		}
	case OpHistory:
		if step.Target != "" && !fhir.ValidResourceType(step.Target) {
			if _, err := fhir.ParseIdentity(step.Target); err != nil {
				return fmt.Errorf("history target %q is neither a type nor Type/id", step.Target)
			}
		}
	}

	switch step.Op {
	case OpCreate, OpUpdate, OpBundle:
		if step.Resource == nil {
			return fmt.Errorf("%s requires a resource", step.Op)
		}
	}
	if step.Op == OpVRead && step.Version < 1 {
		return fmt.Errorf("vread requires a positive version")
	}
	return nil
}

// validateAssertion checks assertion-specific required fields.
func validateAssertion(a Assertion, persist bool, checkpoints map[string]bool) error {
	switch a.Type {
	case AssertCurrentVersion, AssertHistoryCount, AssertNotFound, AssertResource:
		if _, err := fhir.ParseIdentity(a.Target); err != nil {
			return fmt.Errorf("%s requires a Type/id target: %w", a.Type, err)
		}
	}

	switch a.Type {
	case AssertCurrentVersion:
		if a.Version < 1 {
			return fmt.Errorf("current_version requires a positive version")
		}
	case AssertHistoryCount:
		if a.Count < 1 {
			return fmt.Errorf("history_count requires a positive count")
		}
	case AssertNotFound:
	case AssertResource:
		if len(a.Expect) == 0 {
			return fmt.Errorf("resource requires expect")
		}
	case AssertDigestEqual:
		if len(a.Checkpoints) < 2 {
			return fmt.Errorf("digest_equal requires at least two checkpoints")
		}
		for _, name := range a.Checkpoints {
			if !checkpoints[name] {
				return fmt.Errorf("digest_equal references unknown checkpoint %q", name)
			}
		}
	case AssertReplayMatches:
		if !persist {
			return fmt.Errorf("replay_matches requires persist: true")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
