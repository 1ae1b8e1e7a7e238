package update

import (
	"reflect"
	"testing"
)

func TestFromMap_SetsAndUnsets(t *testing.T) {
	u := FromMap(map[string]any{
		"a": map[string]any{"b": 1},
		"c": nil,
	})

	if u.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", u.Len())
	}

	sets := map[string]any{}
	u.Sets(func(path string, value any) { sets[path] = value })
	if !reflect.DeepEqual(sets, map[string]any{"a.b": 1}) {
		t.Errorf("sets = %v", sets)
	}

	var unsets []string
	u.Unsets(func(path string) { unsets = append(unsets, path) })
	if !reflect.DeepEqual(unsets, []string{"c"}) {
		t.Errorf("unsets = %v", unsets)
	}
}

func TestFromMap_FalsyValuesAreSets(t *testing.T) {
	u := FromMap(map[string]any{"a": false, "b": 0, "c": ""})
	if u.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", u.Len())
	}
	var unsets []string
	u.Unsets(func(path string) { unsets = append(unsets, path) })
	if len(unsets) != 0 {
		t.Errorf("falsy values recorded as unsets: %v", unsets)
	}
}

func TestFromMap_DeepNesting(t *testing.T) {
	u := FromMap(map[string]any{
		"demographics": map[string]any{
			"ageRange": map[string]any{"lower": 10, "upper": 15},
		},
	})
	sets := map[string]any{}
	u.Sets(func(path string, value any) { sets[path] = value })
	want := map[string]any{
		"demographics.ageRange.lower": 10,
		"demographics.ageRange.upper": 15,
	}
	if !reflect.DeepEqual(sets, want) {
		t.Errorf("sets = %v, want %v", sets, want)
	}
}

func TestSet_LastWriteWins(t *testing.T) {
	u := New()
	u.Set("status", "UNVERIFIED")
	u.Set("status", "VERIFIED")
	if u.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", u.Len())
	}
	u.Sets(func(path string, value any) {
		if value != "VERIFIED" {
			t.Errorf("value = %v, want VERIFIED", value)
		}
	})
}

func TestSet_CancelsUnset(t *testing.T) {
	u := New()
	u.Unset("notes")
	u.Set("notes", "kept")
	if u.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", u.Len())
	}
	var unsets []string
	u.Unsets(func(path string) { unsets = append(unsets, path) })
	if len(unsets) != 0 {
		t.Errorf("unsets = %v, want none", unsets)
	}
}

func TestUnset_CancelsSet(t *testing.T) {
	u := New()
	u.Set("notes", "gone")
	u.Unset("notes")
	if u.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", u.Len())
	}
	count := 0
	u.Sets(func(string, any) { count++ })
	if count != 0 {
		t.Errorf("sets remain after unset")
	}
}

func TestEmptyUpdate(t *testing.T) {
	if got := FromMap(map[string]any{}).Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
