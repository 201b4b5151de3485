package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted transaction run against a schema.
// Steps drive one transaction at a time; assertions check the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory, relative to the scenario file.
	Schema string `yaml:"schema"`

	// Cache shares an in-memory second-level cache between the
	// scenario's transactions.
	Cache bool `yaml:"cache,omitempty"`

	// Seed rows are stored before the first transaction starts.
	Seed []SeedRow `yaml:"seed,omitempty"`

	// Steps run in order against the current transaction.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedRow stores either a class row or a relation tuple.
type SeedRow struct {
	Class string         `yaml:"class,omitempty"`
	Row   map[string]any `yaml:"row,omitempty"`

	Relation string `yaml:"relation,omitempty"`
	Left     any    `yaml:"left,omitempty"`
	Right    any    `yaml:"right,omitempty"`
}

// Step operations.
const (
	OpGet          = "get"           // load class/key into the transaction
	OpCreate       = "create"        // create class/key with fields
	OpSet          = "set"           // set fields on a loaded object
	OpAddMember    = "add_member"    // add member to the view of class/key
	OpRemoveMember = "remove_member" // remove member from the view of class/key
	OpLoadView     = "load_view"     // force the view of class/key to load
	OpCommit       = "commit"
	OpRollback     = "rollback"
	OpBegin        = "begin"   // close the transaction and start a fresh one
	OpHandoff      = "handoff" // serialize, start a fresh transaction, deserialize
)

// Step is one operation on the current transaction.
type Step struct {
	Op     string         `yaml:"op"`
	Class  string         `yaml:"class,omitempty"`
	Key    any            `yaml:"key,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// View selects a collection of the object at class/key.
	View *ViewRef `yaml:"view,omitempty"`
	// Member is the key of the object added or removed.
	Member any `yaml:"member,omitempty"`

	// ExpectError is the engine error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ViewRef names a collection: a relation side for many-to-many views, or a
// child class and reference field for one-to-many views.
type ViewRef struct {
	Relation string `yaml:"relation,omitempty"`
	Side     string `yaml:"side,omitempty"`

	Class string `yaml:"class,omitempty"`
	Field string `yaml:"field,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type selects the check, see the Assert* constants.
	Type string `yaml:"type"`

	Class string `yaml:"class,omitempty"`
	Key   any    `yaml:"key,omitempty"`

	// State is the expected object state (object_state).
	State string `yaml:"state,omitempty"`

	// Expect holds expected field values, a subset match (field_values).
	Expect map[string]any `yaml:"expect,omitempty"`

	// View and Members select and list the expected members (members).
	View    *ViewRef `yaml:"view,omitempty"`
	Members []any    `yaml:"members,omitempty"`

	// Count is the expected number of rows, tuples or dirty objects.
	Count *int `yaml:"count,omitempty"`

	Relation string `yaml:"relation,omitempty"`

	// DataSource and Ops give the expected operation log (ops).
	DataSource string   `yaml:"datasource,omitempty"`
	Ops        []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertObjectState = "object_state"
	AssertFieldValues = "field_values"
	AssertMembers     = "members"
	AssertStoredRows  = "stored_rows"
	AssertTupleCount  = "tuple_count"
	AssertDirtyCount  = "dirty_count"
	AssertOps         = "ops"
)

// LoadScenario reads and parses a scenario YAML file.
// The schema path is resolved relative to the file. Returns an error if the
// file doesn't exist, is malformed, contains unknown fields (typos), or is
// missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
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
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, row := range s.Seed {
		switch {
		case row.Class != "" && row.Relation != "":
			return fmt.Errorf("seed[%d]: class and relation are exclusive", i)
		case row.Class != "" && row.Row == nil:
			return fmt.Errorf("seed[%d]: row is required", i)
		case row.Relation != "" && (row.Left == nil || row.Right == nil):
			return fmt.Errorf("seed[%d]: left and right are required", i)
		case row.Class == "" && row.Relation == "":
			return fmt.Errorf("seed[%d]: class or relation is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s *Step) error {
	needsObject := func() error {
		if s.Class == "" || s.Key == nil {
			return fmt.Errorf("steps[%d]: %s requires class and key", i, s.Op)
		}
		return nil
	}
	switch s.Op {
	case OpGet, OpCreate, OpSet:
		return needsObject()
	case OpAddMember, OpRemoveMember, OpLoadView:
		if err := needsObject(); err != nil {
			return err
		}
		if err := validateView(fmt.Sprintf("steps[%d]", i), s.View); err != nil {
			return err
		}
		if s.Op != OpLoadView && s.Member == nil {
			return fmt.Errorf("steps[%d]: %s requires member", i, s.Op)
		}
		return nil
	case OpCommit, OpRollback, OpBegin, OpHandoff:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, s.Op)
	}
}

func validateView(path string, v *ViewRef) error {
	switch {
	case v == nil:
		return fmt.Errorf("%s: view is required", path)
	case v.Relation != "" && v.Class != "":
		return fmt.Errorf("%s.view: relation and class are exclusive", path)
	case v.Relation != "" && v.Side == "":
		return fmt.Errorf("%s.view: side is required for relation views", path)
	case v.Class != "" && v.Field == "":
		return fmt.Errorf("%s.view: field is required for class views", path)
	case v.Relation == "" && v.Class == "":
		return fmt.Errorf("%s.view: relation or class is required", path)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(i int, a *Assertion) error {
	path := fmt.Sprintf("assertions[%d]", i)
	switch a.Type {
	case AssertObjectState:
		if a.Class == "" || a.Key == nil || a.State == "" {
			return fmt.Errorf("%s: object_state requires class, key and state", path)
		}
	case AssertFieldValues:
		if a.Class == "" || a.Key == nil || len(a.Expect) == 0 {
			return fmt.Errorf("%s: field_values requires class, key and expect", path)
		}
	case AssertMembers:
		if a.Class == "" || a.Key == nil {
			return fmt.Errorf("%s: members requires class and key", path)
		}
		if err := validateView(path, a.View); err != nil {
			return err
		}
		if a.Members == nil && a.Count == nil {
			return fmt.Errorf("%s: members requires members or count", path)
		}
	case AssertStoredRows:
		if a.Class == "" || a.Count == nil {
			return fmt.Errorf("%s: stored_rows requires class and count", path)
		}
	case AssertTupleCount:
		if a.Relation == "" || a.Count == nil {
			return fmt.Errorf("%s: tuple_count requires relation and count", path)
		}
	case AssertDirtyCount:
		if a.Count == nil {
			return fmt.Errorf("%s: dirty_count requires count", path)
		}
	case AssertOps:
		if a.DataSource == "" || a.Ops == nil {
			return fmt.Errorf("%s: ops requires datasource and ops", path)
		}
	case "":
		return fmt.Errorf("%s: type is required", path)
	default:
		return fmt.Errorf("%s: unknown assertion type %q", path, a.Type)
	}
	return nil
}
