// Package config loads and represents the YAML configuration that
// drives a run: table/transformer declarations, I/O backend settings,
// and de-identification defaults (ClearedConfig / DeIDConfig /
// IOConfig / TableConfig / TransformerConfig / TimeShiftConfig).
package config

// IdentifierConfig declares one cross-table identity: the uid shared
// by every column that must surrogate to the same value space.
type IdentifierConfig struct {
	UID         string `yaml:"uid"`
	Description string `yaml:"description,omitempty"`
}

// TimeShiftConfig configures a DateTime transformer's per-entity
// offset sampling. Every method, shift_by_* as well as random_*, draws
// its offset uniformly from [MinRange, MaxRange] once per entity and
// reuses it for every row belonging to that entity.
type TimeShiftConfig struct {
	Method   string  `yaml:"method"`
	MinRange float64 `yaml:"min_range,omitempty"`
	MaxRange float64 `yaml:"max_range,omitempty"`
}

// IdentityConfig names the entity-identity column and reference uid a
// DateTime transformer keys its per-entity shift on. This is distinct
// from the datetime column itself: two entities can share a timestamp
// but must never share a shift, so the shift lookup is keyed by the
// identity this names, not by the column being shifted.
type IdentityConfig struct {
	Name string `yaml:"name"`
	UID  string `yaml:"uid,omitempty"`
}

// TransformerConfig is one entry in a table's transformer list.
type TransformerConfig struct {
	UID            string           `yaml:"uid"`
	Method         string           `yaml:"method"`
	Column         string           `yaml:"column,omitempty"`
	Columns        []string         `yaml:"columns,omitempty"`
	Identifier     string           `yaml:"identifier,omitempty"`
	Cast           string           `yaml:"cast,omitempty"`
	Filter         string           `yaml:"filter,omitempty"`
	DependsOn      []string         `yaml:"depends_on,omitempty"`
	TimeShift      *TimeShiftConfig `yaml:"time_shift,omitempty"`

	// IDConfig names the entity column a datetime transformer's shift is
	// keyed on. Required for method: datetime.
	IDConfig *IdentityConfig `yaml:"idconfig,omitempty"`
	// DatetimeColumn is the column a datetime transformer shifts.
	// Required for method: datetime.
	DatetimeColumn string `yaml:"datetime_column,omitempty"`

	// Line is the 1-based source line this entry started on, filled in
	// by Load for lint diagnostics and disable-line suppression.
	Line int `yaml:"-"`
}

// IOConfig names one I/O backend and its opaque per-backend settings.
type IOConfig struct {
	IOType string         `yaml:"io_type"`
	Config map[string]any `yaml:",inline"`
}

// PairedIOConfig groups the input and output backend for one data
// source.
type PairedIOConfig struct {
	Input  IOConfig `yaml:"input_config"`
	Output IOConfig `yaml:"output_config"`
}

// DataConfig is the io.data section: table store input/output.
type DataConfig struct {
	InputConfig  IOConfig `yaml:"input_config"`
	OutputConfig IOConfig `yaml:"output_config"`
}

// ReferenceConfig is the io.reference section: the reference-mapping
// store backend, single-sided (it is both read and written in place).
type ReferenceConfig struct {
	Config IOConfig `yaml:"config"`
}

// ClearedIOConfig is the top-level io: section.
type ClearedIOConfig struct {
	Data      DataConfig      `yaml:"data"`
	Reference ReferenceConfig `yaml:"reference"`
}

// DeIDConfig holds de-identification-wide defaults, notably a default
// time_shift applied when a table's transformer doesn't declare its
// own.
type DeIDConfig struct {
	TimeShift *TimeShiftConfig `yaml:"time_shift,omitempty"`
}

// TableConfig is one table's declaration: its own I/O override (if
// any), dependency edges to other tables, a row filter, and its
// transformer list.
type TableConfig struct {
	Name         string              `yaml:"name"`
	DependsOn    []string            `yaml:"depends_on,omitempty"`
	Filter       string              `yaml:"filter,omitempty"`
	IO           *PairedIOConfig     `yaml:"io,omitempty"`
	Transformers []TransformerConfig `yaml:"transformers"`

	Line int `yaml:"-"`
}

// ClearedConfig is the fully-resolved configuration for one run.
type ClearedConfig struct {
	Name       string                 `yaml:"name"`
	DeIDConfig DeIDConfig             `yaml:"deid_config"`
	IO         ClearedIOConfig        `yaml:"io"`
	Tables     map[string]TableConfig `yaml:"tables"`
	Serial     bool                   `yaml:"serial,omitempty"`

	// LinePositions maps a yaml path (e.g. "tables.users.transformers.0")
	// to its source line, populated by Load. Used by internal/lint to
	// report and suppress issues at their original line number even
	// after Hydra-style defaults merging.
	LinePositions map[string]int `yaml:"-"`

	// SourceLines holds the raw lines of the top-level config file (not
	// the merged result), so the linter can read `disable-line
	// rule:<id>` comments next to the line a rule reports against.
	SourceLines []string `yaml:"-"`
}
