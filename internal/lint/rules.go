package lint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nomaai/deidgo/internal/config"
)

var uidFormat = regexp.MustCompile(`^[a-z0-9]([a-z0-9_]*[a-z0-9])?$`)

var validShiftMethods = map[string]bool{
	"shift_by_years": true, "shift_by_months": true, "shift_by_weeks": true,
	"shift_by_days": true, "shift_by_hours": true,
	"random_days": true, "random_hours": true,
}

func issue(line int, severity Severity, format string, args ...any) Issue {
	return Issue{Message: fmt.Sprintf(format, args...), Line: line, Severity: severity}
}

// sortedTableNames gives deterministic iteration order over cfg.Tables,
// so repeated runs over the same config report issues in a stable order.
func sortedTableNames(cfg *config.ClearedConfig) []string {
	names := make([]string, 0, len(cfg.Tables))
	for n := range cfg.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ruleRequiredKeys(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	if strings.TrimSpace(cfg.Name) == "" {
		out = append(out, issue(0, SeverityError, "name is required"))
	}
	if len(cfg.Tables) == 0 {
		out = append(out, issue(0, SeverityError, "at least one table is required"))
	}
	if cfg.IO.Data.InputConfig.IOType == "" {
		out = append(out, issue(0, SeverityError, "io.data.input_config.io_type is required"))
	}
	if cfg.IO.Data.OutputConfig.IOType == "" {
		out = append(out, issue(0, SeverityError, "io.data.output_config.io_type is required"))
	}
	if cfg.IO.Reference.Config.IOType == "" {
		out = append(out, issue(0, SeverityError, "io.reference.config.io_type is required"))
	}
	return out
}

func ruleDatetimeRequiresTimeshift(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			if tr.Method != "datetime" {
				continue
			}
			if tr.TimeShift == nil && cfg.DeIDConfig.TimeShift == nil {
				out = append(out, issue(tr.Line, SeverityError,
					"transformer %q: datetime method requires a time_shift (own or deid_config default)", tr.UID))
			}
		}
	}
	return out
}

func ruleUniqueTransformerUIDs(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	seen := map[string]string{}
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			if tr.UID == "" {
				continue
			}
			if prevTable, ok := seen[tr.UID]; ok {
				out = append(out, issue(tr.Line, SeverityError,
					"transformer uid %q already used in table %q", tr.UID, prevTable))
				continue
			}
			seen[tr.UID] = name
		}
	}
	return out
}

func ruleValidTableDependencies(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, dep := range t.DependsOn {
			if _, ok := cfg.Tables[dep]; !ok {
				out = append(out, issue(t.Line, SeverityError,
					"table %q depends_on unknown table %q", name, dep))
			}
		}
	}
	return out
}

func ruleValidTransformerDependencies(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		uids := map[string]bool{}
		for _, tr := range t.Transformers {
			uids[tr.UID] = true
		}
		for _, tr := range t.Transformers {
			for _, dep := range tr.DependsOn {
				if !uids[dep] {
					out = append(out, issue(tr.Line, SeverityError,
						"transformer %q in table %q depends_on unknown transformer %q", tr.UID, name, dep))
				}
			}
		}
	}
	return out
}

func ruleNoCircularDependencies(cfg *config.ClearedConfig) []Issue {
	var out []Issue

	tableEdges := map[string][]string{}
	for name, t := range cfg.Tables {
		tableEdges[name] = t.DependsOn
	}
	if cycle := findCycle(tableEdges); cycle != "" {
		out = append(out, issue(0, SeverityError, "circular table dependency involving %q", cycle))
	}

	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		trEdges := map[string][]string{}
		for _, tr := range t.Transformers {
			trEdges[tr.UID] = tr.DependsOn
		}
		if cycle := findCycle(trEdges); cycle != "" {
			out = append(out, issue(t.Line, SeverityError,
				"circular transformer dependency in table %q involving %q", name, cycle))
		}
	}
	return out
}

func findCycle(edges map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var found string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, next := range edges[node] {
			switch color[next] {
			case gray:
				found = next
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return found
		}
	}
	return ""
}

func ruleUIDFormat(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		if !uidFormat.MatchString(name) {
			out = append(out, issue(t.Line, SeverityError,
				"table name %q must be lowercase snake_case", name))
		}
		for _, tr := range t.Transformers {
			if tr.UID != "" && !uidFormat.MatchString(tr.UID) {
				out = append(out, issue(tr.Line, SeverityError,
					"transformer uid %q must be lowercase snake_case", tr.UID))
			}
		}
	}
	return out
}

func ruleDatetimeTimeshiftDefined(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	check := func(line int, label string, ts *config.TimeShiftConfig) {
		if ts == nil {
			return
		}
		if !validShiftMethods[ts.Method] {
			out = append(out, issue(line, SeverityError,
				"%s: unknown time_shift method %q", label, ts.Method))
		}
	}
	check(0, "deid_config.time_shift", cfg.DeIDConfig.TimeShift)
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			if tr.Method == "datetime" {
				check(tr.Line, fmt.Sprintf("transformer %q", tr.UID), tr.TimeShift)
			}
		}
	}
	return out
}

func ruleTimeshiftRisk(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	warn := func(line int, label string, ts *config.TimeShiftConfig) {
		if ts != nil && ts.Method == "shift_by_days" {
			out = append(out, issue(line, SeverityWarning,
				"%s: shift_by_days is a coarse shift that is easier to infer or back out than a calendar-aware shift", label))
		}
	}
	warn(0, "deid_config.time_shift", cfg.DeIDConfig.TimeShift)
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			warn(tr.Line, fmt.Sprintf("transformer %q", tr.UID), tr.TimeShift)
		}
	}
	return out
}

// ruleDropperOrder flags a column dropper declared before a transformer
// that reads one of the columns it drops, unless the dropper lists that
// transformer in its own depends_on. Only declaration positions and the
// dropper's direct depends_on are compared; a reader declared ahead of
// the dropper that itself depends on the dropper is not flagged.
func ruleDropperOrder(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		index := map[string]int{}
		for i, tr := range t.Transformers {
			index[tr.UID] = i
		}
		for _, dropper := range t.Transformers {
			if dropper.Method != "drop_column" && dropper.Method != "column_dropper" {
				continue
			}
			dropped := map[string]bool{}
			for _, c := range dropper.Columns {
				dropped[c] = true
			}
			if dropper.Column != "" {
				dropped[dropper.Column] = true
			}
			for _, tr := range t.Transformers {
				if tr.UID == dropper.UID {
					continue
				}
				usesDropped := dropped[tr.Column]
				for _, c := range tr.Columns {
					usesDropped = usesDropped || dropped[c]
				}
				if !usesDropped {
					continue
				}
				dependsOnTransformer := false
				for _, d := range dropper.DependsOn {
					if d == tr.UID {
						dependsOnTransformer = true
					}
				}
				if !dependsOnTransformer && index[tr.UID] > index[dropper.UID] {
					out = append(out, issue(dropper.Line, SeverityError,
						"column dropper %q runs before transformer %q which still uses a dropped column", dropper.UID, tr.UID))
				}
			}
		}
	}
	return out
}

func ruleTimeshiftRange(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	check := func(line int, label string, ts *config.TimeShiftConfig) {
		if ts == nil || !validShiftMethods[ts.Method] {
			return
		}
		if ts.MinRange > ts.MaxRange {
			out = append(out, issue(line, SeverityError,
				"%s: min_range must not be greater than max_range for %q", label, ts.Method))
			return
		}
		if ts.MinRange < 0 && ts.MaxRange < 0 {
			out = append(out, issue(line, SeverityWarning,
				"%s: min_range and max_range are both negative for %q", label, ts.Method))
		}
	}
	check(0, "deid_config.time_shift", cfg.DeIDConfig.TimeShift)
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			check(tr.Line, fmt.Sprintf("transformer %q", tr.UID), tr.TimeShift)
		}
	}
	return out
}

func ruleRequiredTransformerConfigs(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			if tr.UID == "" {
				out = append(out, issue(tr.Line, SeverityError, "transformer in table %q is missing uid", name))
			}
			if tr.Method == "" {
				out = append(out, issue(tr.Line, SeverityError, "transformer %q is missing method", tr.UID))
			}
			if tr.Method != "datetime" && tr.Column == "" && len(tr.Columns) == 0 {
				out = append(out, issue(tr.Line, SeverityError, "transformer %q must set column or columns", tr.UID))
			}
			if tr.Method == "datetime" {
				if tr.IDConfig == nil {
					out = append(out, issue(tr.Line, SeverityError, "transformer %q is missing required config %q", tr.UID, "idconfig"))
				}
				if tr.DatetimeColumn == "" {
					out = append(out, issue(tr.Line, SeverityError, "transformer %q is missing required config %q", tr.UID, "datetime_column"))
				}
			}
		}
	}
	return out
}

func ruleMultipleTransformersSameColumn(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		byColumn := map[string][]config.TransformerConfig{}
		for _, tr := range t.Transformers {
			if tr.Column == "" {
				continue
			}
			byColumn[tr.Column] = append(byColumn[tr.Column], tr)
		}
		columns := make([]string, 0, len(byColumn))
		for c := range byColumn {
			columns = append(columns, c)
		}
		sort.Strings(columns)
		for _, c := range columns {
			group := byColumn[c]
			if len(group) < 2 {
				continue
			}
			allFiltered := true
			for _, tr := range group {
				if strings.TrimSpace(tr.Filter) == "" {
					allFiltered = false
				}
			}
			if allFiltered {
				continue
			}
			out = append(out, issue(group[0].Line, SeverityWarning,
				"column %q in table %q is targeted by %d transformers without mutually exclusive filters", c, name, len(group)))
		}
	}
	return out
}

func ruleValueCastAppropriateness(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		for _, tr := range t.Transformers {
			switch tr.Method {
			case "drop_column", "column_dropper":
				if tr.Cast != "" {
					out = append(out, issue(tr.Line, SeverityError,
						"transformer %q: column dropper does not support value_cast", tr.UID))
				}
			case "id":
				if tr.Cast != "" && tr.Cast != "integer" && tr.Cast != "string" && tr.Cast != "float" {
					out = append(out, issue(tr.Line, SeverityWarning,
						"transformer %q: id method with unusual cast %q", tr.UID, tr.Cast))
				}
			case "datetime":
				if tr.Cast != "" && tr.Cast != "datetime" {
					out = append(out, issue(tr.Line, SeverityWarning,
						"transformer %q: datetime method with unusual cast %q", tr.UID, tr.Cast))
				}
			}
		}
	}
	return out
}

var systemDirPrefixes = []string{"/tmp", "/etc", "/var", "/usr", "/bin", "/sbin", "/sys", "/proc", "/root"}

func ruleOutputPathsSystemDirectories(cfg *config.ClearedConfig) []Issue {
	var out []Issue
	check := func(label string, io config.IOConfig) {
		if io.IOType != "filesystem" {
			return
		}
		basePath, _ := io.Config["base_path"].(string)
		for _, prefix := range systemDirPrefixes {
			if strings.HasPrefix(basePath, prefix) {
				out = append(out, issue(0, SeverityWarning,
					"%s: base_path %q writes into a system directory", label, basePath))
				return
			}
		}
	}
	check("io.data.output_config", cfg.IO.Data.OutputConfig)
	for _, name := range sortedTableNames(cfg) {
		t := cfg.Tables[name]
		if t.IO != nil {
			check(fmt.Sprintf("tables.%s.io.output_config", name), t.IO.Output)
		}
	}
	return out
}

// ruleConfigComplexity flags a config whose source file has grown
// large enough that splitting it with defaults: imports would help
// readability.
func ruleConfigComplexity(cfg *config.ClearedConfig) []Issue {
	const threshold = 50
	if len(cfg.SourceLines) <= threshold {
		return nil
	}
	return []Issue{issue(0, SeverityWarning,
		"config is %d lines; consider splitting it with defaults: imports", len(cfg.SourceLines))}
}
