package jsonloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesArrayOfObjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")
	content := `[
		{"uid": "g1", "displayName": "Math 101", "members": ["s1", "s2"]},
		{"uid": "g2", "displayName": "Science 101", "members": []}
	]`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	b := &Backend{Path: path, Type: "StudentGroup"}
	objs, err := b.Load(context.Background(), "StudentGroup", "uid")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}

	byUID := make(map[string]int)
	for _, o := range objs {
		byUID[o.Get("uid")] = len(o.Values("members"))
	}
	if byUID["g1"] != 2 {
		t.Fatalf("expected g1 to have 2 members, got %d", byUID["g1"])
	}
}

func TestLoadRejectsMismatchedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")
	os.WriteFile(path, []byte(`[]`), 0600)

	b := &Backend{Path: path, Type: "StudentGroup"}
	_, err := b.Load(context.Background(), "User", "uid")
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
}
