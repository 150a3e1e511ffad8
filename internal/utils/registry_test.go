package utils

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry[string, int]()
	for i, name := range []string{"sha384", "sha256", "sha1"} {
		err := reg.Set(name, i)
		if nil != err {
			t.Fatalf("Failed Set %s, got error %v", name, err)
		}
	}

	err := reg.Set("sha256", 10)
	if !errors.Is(err, Error) {
		t.Errorf("name conflict not detected, got error %v", err)
	}
	if v, found := reg.Get("sha256"); !found || 1 != v {
		t.Errorf("failed Get control, got %d %v", v, found)
	}
	if _, found := reg.Get("md5"); found {
		t.Error("unregistered name found")
	}

	names := reg.Names()
	if !slices.Equal([]string{"sha1", "sha256", "sha384"}, names) {
		t.Errorf("failed Names control, got %v", names)
	}

	v, found := reg.Find(func(v int) bool { return v >= 1 })
	if !found || 2 != v {
		t.Errorf("failed Find control, got %d %v", v, found)
	}
	if _, found = reg.Find(func(v int) bool { return v > 5 }); found {
		t.Error("Find matched nothing but returned found")
	}
}
