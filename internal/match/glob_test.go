package match

import (
	"reflect"
	"testing"
)

func TestFiles(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		include []string
		exclude []string
		want    []string
	}{
		{
			name:    "single include pattern",
			paths:   []string{"db/schema.sql", "app/main.go"},
			include: []string{"db/**"},
			want:    []string{"db/schema.sql"},
		},
		{
			name:    "doublestar crosses directories",
			paths:   []string{"db/migrations/001.sql", "db/schema.sql", "README.md"},
			include: []string{"db/**/*.sql"},
			want:    []string{"db/migrations/001.sql"},
		},
		{
			name:    "dotfile directories are matchable",
			paths:   []string{".github/workflows/ci.yml", "Makefile"},
			include: []string{".github/**"},
			want:    []string{".github/workflows/ci.yml"},
		},
		{
			name:    "exclude wins over include",
			paths:   []string{"docs/a.md", "docs/generated/b.md"},
			include: []string{"docs/**"},
			exclude: []string{"docs/generated/**"},
			want:    []string{"docs/a.md"},
		},
		{
			name:  "empty include selects everything",
			paths: []string{"a.go", ".env"},
			want:  []string{"a.go", ".env"},
		},
		{
			name:    "no matches",
			paths:   []string{"a.go"},
			include: []string{"*.sql"},
			want:    nil,
		},
		{
			name:    "multiple includes accumulate",
			paths:   []string{"a.go", "b.sql", "c.md"},
			include: []string{"*.go", "*.sql"},
			want:    []string{"a.go", "b.sql"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Files(tt.paths, tt.include, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Files() = %v, want %v", got, tt.want)
			}
			if wantAny := len(tt.want) > 0; Any(tt.paths, tt.include, tt.exclude) != wantAny {
				t.Fatalf("Any() = %v, want %v", !wantAny, wantAny)
			}
		})
	}
}

func TestFilesInvalidPatternIsNonMatch(t *testing.T) {
	got := Files([]string{"a.go"}, []string{"[unclosed"}, nil)
	if got != nil {
		t.Fatalf("invalid pattern should match nothing, got %v", got)
	}
}
