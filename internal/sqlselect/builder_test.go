package sqlselect

import (
	"errors"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		want    string
		wantErr string
	}{
		{
			name:   "defaults",
			params: Params{Table: "telegram_management.sessions"},
			want:   "SELECT * FROM telegram_management.sessions LIMIT 1000",
		},
		{
			name: "full statement",
			params: Params{
				Table:   "public.orders",
				Columns: []string{"id", "status"},
				Where:   "status = 'open'",
				OrderBy: "created_at desc, id",
				Limit:   intPtr(50),
			},
			want: "SELECT id, status FROM public.orders WHERE status = 'open' ORDER BY created_at DESC, id LIMIT 50",
		},
		{
			name:   "limit clamped",
			params: Params{Table: "t", Limit: intPtr(5000)},
			want:   "SELECT * FROM t LIMIT 1000",
		},
		{
			name:   "limit just under max",
			params: Params{Table: "t", Limit: intPtr(999)},
			want:   "SELECT * FROM t LIMIT 999",
		},
		{
			name:   "empty where and order by are ignored",
			params: Params{Table: "t", Where: "  ", OrderBy: ""},
			want:   "SELECT * FROM t LIMIT 1000",
		},
		{
			name:   "empty order by items skipped",
			params: Params{Table: "t", OrderBy: "a asc, , b"},
			want:   "SELECT * FROM t ORDER BY a ASC, b LIMIT 1000",
		},
		{
			name:    "bad table",
			params:  Params{Table: "t; DROP TABLE users"},
			wantErr: "invalid_table_name",
		},
		{
			name:    "bad columns are listed",
			params:  Params{Table: "t", Columns: []string{"id", "name)", "1x"}},
			wantErr: "invalid_column_name: ['name)', '1x']",
		},
		{
			name:    "where with statement separator",
			params:  Params{Table: "t", Where: "id = 1; DELETE FROM t"},
			wantErr: "invalid_where_clause",
		},
		{
			name:    "where with comment",
			params:  Params{Table: "t", Where: "id = 1 -- x"},
			wantErr: "invalid_where_clause",
		},
		{
			name:    "where with block comment",
			params:  Params{Table: "t", Where: "id = 1 /* x */"},
			wantErr: "invalid_where_clause",
		},
		{
			name:    "order by bad direction",
			params:  Params{Table: "t", OrderBy: "id sideways"},
			wantErr: "invalid_order_by",
		},
		{
			name:    "order by bad column",
			params:  Params{Table: "t", OrderBy: "lower(name)"},
			wantErr: "invalid_order_by",
		},
		{
			name:    "order by only commas",
			params:  Params{Table: "t", OrderBy: " , ,"},
			wantErr: "invalid_order_by",
		},
		{
			name:    "non-positive limit",
			params:  Params{Table: "t", Limit: intPtr(0)},
			wantErr: "invalid_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.params)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Build() = %q, want error %q", got, tt.wantErr)
				}
				if err.Error() != tt.wantErr {
					t.Errorf("Build() error = %q, want %q", err.Error(), tt.wantErr)
				}
				var be *BuildError
				if !errors.As(err, &be) {
					t.Errorf("Build() error is %T, want *BuildError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSafeIdentifier(t *testing.T) {
	for name, want := range map[string]bool{
		"users":           true,
		"_private":        true,
		"schema.table":    true,
		"a1.b2_c3":        true,
		"1table":          false,
		"users;":          false,
		"name with space": false,
		"":                false,
	} {
		if got := IsSafeIdentifier(name); got != want {
			t.Errorf("IsSafeIdentifier(%q) = %v, want %v", name, got, want)
		}
	}
}
