package csvloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "students.csv")
	content := "uid,givenName,familyName\ns1,Alice,Andersson\ns2,Bob,\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	b := &Backend{Path: path, Type: "Student"}
	objs, err := b.Load(context.Background(), "Student", "uid")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	if objs[0].Get("givenName") != "Alice" {
		t.Fatalf("unexpected givenName: %q", objs[0].Get("givenName"))
	}
	if objs[1].Get("familyName") != "" {
		t.Fatalf("expected empty familyName to be absent, got %q", objs[1].Get("familyName"))
	}
}

func TestLoadRejectsMismatchedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "students.csv")
	os.WriteFile(path, []byte("uid\ns1\n"), 0600)

	b := &Backend{Path: path, Type: "Student"}
	_, err := b.Load(context.Background(), "User", "uid")
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
}
