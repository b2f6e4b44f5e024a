package rule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b *Rule
		want int
	}{
		{"lower order first", &Rule{ID: "z", Order: 1}, &Rule{ID: "a", Order: 2}, -1},
		{"higher order last", &Rule{ID: "a", Order: 9}, &Rule{ID: "z", Order: 2}, 1},
		{"tie broken by id a before b", &Rule{ID: "a", Order: 5}, &Rule{ID: "b", Order: 5}, -1},
		{"tie broken by id b after a", &Rule{ID: "b", Order: 5}, &Rule{ID: "a", Order: 5}, 1},
		{"same rule", &Rule{ID: "a", Order: 5}, &Rule{ID: "a", Order: 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
				t.Errorf("Compare() = %d, want sign of %d", got, tt.want)
			}
		})
	}
}

func TestSort(t *testing.T) {
	rules := []*Rule{
		{ID: "b", Order: 5},
		{ID: "c", Order: 1},
		{ID: "a", Order: 5},
	}
	Sort(rules)

	want := []string{"c", "a", "b"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, rules[i].ID)
		}
	}
}

func TestEqual(t *testing.T) {
	a := &Rule{ID: "x", Name: "one", Order: 1}
	b := &Rule{ID: "x", Name: "two", Order: 7}
	c := &Rule{ID: "y"}

	if !a.Equal(b) {
		t.Error("expected rules with same id to be equal")
	}
	if a.Equal(c) {
		t.Error("expected rules with different ids to differ")
	}
	var nilRule *Rule
	if !nilRule.Equal(nil) {
		t.Error("expected nil rules to be equal")
	}
}

func TestFilterConfig(t *testing.T) {
	r := &Rule{ID: "r"}
	if !r.AddFilterConfig(FilterConfig{ID: "router", Config: `{"host":"a"}`}) {
		t.Fatal("expected first add to succeed")
	}
	if r.AddFilterConfig(FilterConfig{ID: "router", Config: `{"host":"b"}`}) {
		t.Error("expected duplicate add to be rejected")
	}
	if r.AddFilterConfig(FilterConfig{ID: "Router", Config: `{"host":"c"}`}) {
		t.Error("expected duplicate add differing only in case to be rejected")
	}

	fc, ok := r.FilterConfig("ROUTER")
	if !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	if fc.Config != `{"host":"a"}` {
		t.Errorf("expected original config, got %q", fc.Config)
	}
	if _, ok := r.FilterConfig("missing"); ok {
		t.Error("expected missing filter lookup to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    *Rule
		wantErr bool
	}{
		{"valid", &Rule{ID: "a", FilterConfigs: []FilterConfig{{ID: "x"}}}, false},
		{"nil", nil, true},
		{"missing id", &Rule{}, true},
		{"missing filter id", &Rule{ID: "a", FilterConfigs: []FilterConfig{{}}}, true},
		{"duplicate filter", &Rule{ID: "a", FilterConfigs: []FilterConfig{{ID: "x"}, {ID: "x"}}}, true},
		{"duplicate filter case", &Rule{ID: "a", FilterConfigs: []FilterConfig{{ID: "Router"}, {ID: "router"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(
		&Rule{ID: "b", Order: 2},
		&Rule{ID: "a", Order: 2, FilterConfigs: []FilterConfig{{ID: "router", Config: "{}"}}},
	)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}

	r, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r.ID != "a" {
		t.Errorf("expected rule a, got %q", r.ID)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != "a" {
		t.Errorf("expected sorted list starting with a, got %v", list)
	}

	if _, err := FilterConfigOf(ctx, s, "a", "router"); err != nil {
		t.Errorf("FilterConfigOf() error = %v", err)
	}
	if _, err := FilterConfigOf(ctx, s, "a", "missing"); !errors.Is(err, ErrFilterConfigNotFound) {
		t.Errorf("expected ErrFilterConfigNotFound, got %v", err)
	}
}

func TestMemoryStore_PutCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := NewMemoryStore()
	r := &Rule{ID: "a", Name: "before"}
	if err := s.Put(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Name = "after"

	got, _ := s.Get(ctx, "a")
	if got.Name != "before" {
		t.Errorf("expected stored rule to be isolated from caller, got %q", got.Name)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - id: user
    name: User service
    protocol: http
    order: 10
    filter_configs:
      - id: router
        config: '{"host":"127.0.0.1:8081"}'
  - id: admin
    order: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", s.Len())
	}

	r, err := s.Get(context.Background(), "user")
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasFilter("router") {
		t.Error("expected user rule to carry router filter")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	dup := filepath.Join(dir, "dup.yaml")
	os.WriteFile(dup, []byte("rules:\n  - id: a\n  - id: a\n"), 0o644)
	_, err := LoadFile(dup)
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for duplicate ids, got %v", err)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Backend != "file" {
		t.Errorf("expected file StoreError, got %v", err)
	}
}
