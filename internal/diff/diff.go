package diff

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"schoolhub/internal/db"
)

// MissingTables returns the expected names absent from actual, in expected
// order. Tables present only in actual are not reported.
func MissingTables(expected, actual []string) []string {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[name] = struct{}{}
	}
	missing := []string{}
	for _, name := range expected {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// SchemaDiff compares a reference tenant schema (Left) with another (Right).
type SchemaDiff struct {
	Left        string               `json:"left"`
	Right       string               `json:"right"`
	OnlyInLeft  []string             `json:"only_in_left,omitempty"`
	OnlyInRight []string             `json:"only_in_right,omitempty"`
	Tables      map[string]TableDiff `json:"tables,omitempty"`
}

type TableDiff struct {
	OnlyInLeft      []string       `json:"only_in_left,omitempty"`
	OnlyInRight     []string       `json:"only_in_right,omitempty"`
	Changed         []ColumnChange `json:"changed,omitempty"`
	PrimaryKeyLeft  []string       `json:"primary_key_left,omitempty"`
	PrimaryKeyRight []string       `json:"primary_key_right,omitempty"`
	PrimaryKeyDiff  bool           `json:"primary_key_diff"`
}

type ColumnChange struct {
	Name  string    `json:"name"`
	Left  db.Column `json:"left"`
	Right db.Column `json:"right"`
}

func Compare(left, right db.Schema) SchemaDiff {
	res := SchemaDiff{
		Left:   left.Name,
		Right:  right.Name,
		Tables: map[string]TableDiff{},
	}

	leftTables := sortedKeys(left.Tables)
	rightTables := sortedKeys(right.Tables)
	res.OnlyInLeft = MissingTables(leftTables, rightTables)
	res.OnlyInRight = MissingTables(rightTables, leftTables)

	for _, name := range leftTables {
		tl := left.Tables[name]
		tr, ok := right.Tables[name]
		if !ok {
			continue
		}
		if td, changed := compareTables(tl, tr); changed {
			res.Tables[name] = td
		}
	}
	return res
}

func compareTables(left, right db.Table) (TableDiff, bool) {
	td := TableDiff{
		PrimaryKeyLeft:  slices.Clone(left.PrimaryKey),
		PrimaryKeyRight: slices.Clone(right.PrimaryKey),
		PrimaryKeyDiff:  !slices.Equal(left.PrimaryKey, right.PrimaryKey),
	}
	leftCols := sortedKeys(left.Columns)
	rightCols := sortedKeys(right.Columns)
	td.OnlyInLeft = MissingTables(leftCols, rightCols)
	td.OnlyInRight = MissingTables(rightCols, leftCols)

	for _, col := range leftCols {
		cr, ok := right.Columns[col]
		if !ok {
			continue
		}
		cl := left.Columns[col]
		if !columnsEqual(cl, cr) {
			td.Changed = append(td.Changed, ColumnChange{Name: col, Left: cl, Right: cr})
		}
	}
	changed := td.PrimaryKeyDiff || len(td.OnlyInLeft) > 0 || len(td.OnlyInRight) > 0 || len(td.Changed) > 0
	return td, changed
}

func columnsEqual(a, b db.Column) bool {
	return strings.EqualFold(a.DataType, b.DataType) &&
		a.IsNullable == b.IsNullable &&
		defaultText(a.DefaultValue) == defaultText(b.DefaultValue)
}

// defaultText strips the schema qualifier Postgres adds to sequence defaults
// so that identical tables in different tenant schemas compare equal.
func defaultText(def *string) string {
	if def == nil {
		return ""
	}
	v := strings.TrimSpace(*def)
	if i := strings.Index(v, "nextval('"); i >= 0 {
		rest := v[i+len("nextval('"):]
		if dot := strings.Index(rest, "."); dot >= 0 && dot < strings.Index(rest, "'") {
			v = v[:i+len("nextval('")] + rest[dot+1:]
		}
	}
	return v
}

// Describe renders d as one line per difference.
func Describe(d SchemaDiff) string {
	if !d.HasChanges() {
		return fmt.Sprintf("schemas %s and %s match", d.Left, d.Right)
	}

	var lines []string
	if len(d.OnlyInLeft) > 0 {
		lines = append(lines, fmt.Sprintf("tables only in %s: %s", d.Left, strings.Join(d.OnlyInLeft, ", ")))
	}
	if len(d.OnlyInRight) > 0 {
		lines = append(lines, fmt.Sprintf("tables only in %s: %s", d.Right, strings.Join(d.OnlyInRight, ", ")))
	}

	for _, name := range sortedKeys(d.Tables) {
		td := d.Tables[name]
		if len(td.OnlyInLeft) > 0 {
			lines = append(lines, fmt.Sprintf("table %s: columns only in %s: %s", name, d.Left, strings.Join(td.OnlyInLeft, ", ")))
		}
		if len(td.OnlyInRight) > 0 {
			lines = append(lines, fmt.Sprintf("table %s: columns only in %s: %s", name, d.Right, strings.Join(td.OnlyInRight, ", ")))
		}
		for _, ch := range td.Changed {
			lines = append(lines, fmt.Sprintf("table %s column %s differs (%s: %s null=%v default=%q | %s: %s null=%v default=%q)",
				name, ch.Name,
				d.Left, ch.Left.DataType, ch.Left.IsNullable, defaultText(ch.Left.DefaultValue),
				d.Right, ch.Right.DataType, ch.Right.IsNullable, defaultText(ch.Right.DefaultValue)))
		}
		if td.PrimaryKeyDiff {
			lines = append(lines, fmt.Sprintf("table %s primary key differs (%s: %v | %s: %v)", name, d.Left, td.PrimaryKeyLeft, d.Right, td.PrimaryKeyRight))
		}
	}
	return strings.Join(lines, "\n")
}

func (d SchemaDiff) HasChanges() bool {
	return len(d.OnlyInLeft) > 0 || len(d.OnlyInRight) > 0 || len(d.Tables) > 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
