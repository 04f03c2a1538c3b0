package plugin

import "testing"

func TestPipelineRunsPluginsInOrder(t *testing.T) {
	var calls []string
	a := Func{
		ClassifyFunc: func(string, string, string) Classification { return Process },
		ProcessFunc: func(_, _, json string) (string, error) {
			calls = append(calls, "a")
			return json + "a", nil
		},
	}
	b := Func{
		ClassifyFunc: func(string, string, string) Classification { return Process },
		ProcessFunc: func(_, _, json string) (string, error) {
			calls = append(calls, "b")
			return json + "b", nil
		},
	}
	p := NewPipeline(map[string]Plugin{"a": a, "b": b}, []string{"a", "b"})

	got, err := p.Run("User", "id1", "x")
	if err != nil {
		t.Fatal(err)
	}
	if got != "xab" {
		t.Fatalf("got %q, want %q", got, "xab")
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestPipelineBlockStopsAndReturnsErrBlocked(t *testing.T) {
	blocker := Func{ClassifyFunc: func(string, string, string) Classification { return Block }}
	never := Func{ClassifyFunc: func(string, string, string) Classification {
		t.Fatal("plugin after a block must not run")
		return Process
	}}
	p := NewPipeline(map[string]Plugin{"blocker": blocker, "never": never}, []string{"blocker", "never"})

	_, err := p.Run("User", "id1", "x")
	var blocked *ErrBlocked
	if err == nil {
		t.Fatal("expected ErrBlocked")
	}
	if !errorsAs(err, &blocked) {
		t.Fatalf("expected *ErrBlocked, got %T: %v", err, err)
	}
	if blocked.Plugin != "blocker" {
		t.Fatalf("expected blocker name, got %q", blocked.Plugin)
	}
}

func TestPipelineSkipShortCircuits(t *testing.T) {
	skipper := Func{ClassifyFunc: func(string, string, string) Classification { return Skip }}
	never := Func{ClassifyFunc: func(string, string, string) Classification {
		t.Fatal("plugin after a skip must not run")
		return Process
	}}
	p := NewPipeline(map[string]Plugin{"skipper": skipper, "never": never}, []string{"skipper", "never"})

	got, err := p.Run("User", "id1", "unchanged")
	if err != nil {
		t.Fatal(err)
	}
	if got != "unchanged" {
		t.Fatalf("got %q, want %q", got, "unchanged")
	}
}

func TestUUIDValidatorBlocksNonUUID(t *testing.T) {
	v := UUIDValidator()
	if v.Classify("User", "not-a-uuid", "{}") != Block {
		t.Fatal("expected Block for non-UUID id")
	}
	if v.Classify("User", "c4c76141-20f0-4c5a-a76a-ef36e1a8dcd6", "{}") != Process {
		t.Fatal("expected Process for a valid UUID")
	}
}

func TestSchoolUnitCodeValidatorOnlyAppliesToSchoolUnit(t *testing.T) {
	v := SchoolUnitCodeValidator()
	if v.Classify("User", "id", "{}") != Process {
		t.Fatal("expected non-SchoolUnit types to pass through")
	}
	if v.Classify("SchoolUnit", "id", `{"schoolUnitCode":"1234"}`) != Block {
		t.Fatal("expected Block for a short schoolUnitCode")
	}
	if v.Classify("SchoolUnit", "id", `{"schoolUnitCode":"12345678"}`) != Process {
		t.Fatal("expected Process for a valid 8-digit schoolUnitCode")
	}
}

// errorsAs avoids importing errors just for one helper in the test file.
func errorsAs(err error, target **ErrBlocked) bool {
	if e, ok := err.(*ErrBlocked); ok {
		*target = e
		return true
	}
	return false
}
