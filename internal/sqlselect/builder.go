// Package sqlselect builds and runs simple, validated SELECT statements for
// the database agent.
package sqlselect

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// LimitMax caps every statement.
	LimitMax = 1000
	// DefaultLimit applies when the caller gives none; it is then clamped.
	DefaultLimit = 10000
)

var safeIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\.]*$`)

// Error codes returned by Build. They are part of the tool contract and are
// shown verbatim to the model.
const (
	CodeInvalidTableName  = "invalid_table_name"
	CodeInvalidColumnName = "invalid_column_name"
	CodeInvalidWhere      = "invalid_where_clause"
	CodeInvalidOrderBy    = "invalid_order_by"
	CodeInvalidLimit      = "invalid_limit"
)

// BuildError is a rejected parameter set.
type BuildError struct {
	Code    string
	Columns []string
}

func (e *BuildError) Error() string {
	if e.Code == CodeInvalidColumnName {
		quoted := make([]string, len(e.Columns))
		for i, c := range e.Columns {
			quoted[i] = "'" + c + "'"
		}
		return fmt.Sprintf("%s: [%s]", e.Code, strings.Join(quoted, ", "))
	}
	return e.Code
}

// Params describes one SELECT. Empty Where and OrderBy mean no clause; a nil
// Limit means DefaultLimit.
type Params struct {
	Table   string   `json:"schema_and_table_name"`
	Columns []string `json:"columns,omitempty"`
	Where   string   `json:"where,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
}

// IsSafeIdentifier reports whether name may be used as a schema, table or column.
func IsSafeIdentifier(name string) bool {
	return safeIdentifier.MatchString(name)
}

// Build validates p and renders
// SELECT {columns} FROM {table} [WHERE ...] [ORDER BY ...] LIMIT {n}.
func Build(p Params) (string, error) {
	if !IsSafeIdentifier(p.Table) {
		return "", &BuildError{Code: CodeInvalidTableName}
	}

	columns, err := buildColumns(p.Columns)
	if err != nil {
		return "", err
	}

	parts := []string{"SELECT", columns, "FROM", p.Table}

	if where := strings.TrimSpace(p.Where); where != "" {
		if !validWhere(where) {
			return "", &BuildError{Code: CodeInvalidWhere}
		}
		parts = append(parts, "WHERE", where)
	}

	if strings.TrimSpace(p.OrderBy) != "" {
		orderBy, ok := sanitizeOrderBy(p.OrderBy)
		if !ok {
			return "", &BuildError{Code: CodeInvalidOrderBy}
		}
		parts = append(parts, "ORDER BY", orderBy)
	}

	limit := DefaultLimit
	if p.Limit != nil {
		if *p.Limit <= 0 {
			return "", &BuildError{Code: CodeInvalidLimit}
		}
		limit = *p.Limit
	}
	parts = append(parts, "LIMIT", fmt.Sprint(clampLimit(limit)))

	return strings.Join(parts, " "), nil
}

func buildColumns(requested []string) (string, error) {
	if len(requested) == 0 || (len(requested) == 1 && requested[0] == "*") {
		return "*", nil
	}
	var invalid []string
	for _, c := range requested {
		if !IsSafeIdentifier(c) {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return "", &BuildError{Code: CodeInvalidColumnName, Columns: invalid}
	}
	return strings.Join(requested, ", "), nil
}

func validWhere(where string) bool {
	for _, token := range []string{";", "--", "/*", "*/"} {
		if strings.Contains(where, token) {
			return false
		}
	}
	return true
}

// sanitizeOrderBy normalizes "a desc, b" to "a DESC, b".
func sanitizeOrderBy(orderBy string) (string, bool) {
	var parts []string
	for _, item := range strings.Split(orderBy, ",") {
		tokens := strings.Fields(item)
		if len(tokens) == 0 {
			continue
		}
		col := tokens[0]
		direction := ""
		if len(tokens) > 1 {
			direction = strings.ToUpper(tokens[1])
		}
		if !IsSafeIdentifier(col) {
			return "", false
		}
		if direction != "" && direction != "ASC" && direction != "DESC" {
			return "", false
		}
		parts = append(parts, strings.TrimSpace(col+" "+direction))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}

func clampLimit(limit int) int {
	if limit < LimitMax {
		return limit
	}
	return LimitMax
}
