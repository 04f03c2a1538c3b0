package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/Sambruk/egilscim/internal/audit"
	"github.com/Sambruk/egilscim/internal/object"
	"github.com/Sambruk/egilscim/internal/scimclient"
	"github.com/Sambruk/egilscim/internal/threshold"
)

type call struct {
	op       string
	endpoint string
	id       string
	json     string
}

type fakeDispatcher struct {
	calls         []call
	createOutcome scimclient.Outcome
	createErr     error
	updateOutcome scimclient.Outcome
	updateErr     error
	deleteOutcome scimclient.Outcome
	deleteErr     error
}

func (f *fakeDispatcher) Create(_ context.Context, endpoint, id, json string) (scimclient.Outcome, error) {
	f.calls = append(f.calls, call{"create", endpoint, id, json})
	if f.createErr != nil || f.createOutcome.Status != 0 {
		return f.createOutcome, f.createErr
	}
	return scimclient.Outcome{Status: 201, Success: true}, nil
}

func (f *fakeDispatcher) Update(_ context.Context, endpoint, id, json string) (scimclient.Outcome, error) {
	f.calls = append(f.calls, call{"update", endpoint, id, json})
	if f.updateErr != nil || f.updateOutcome.Status != 0 {
		return f.updateOutcome, f.updateErr
	}
	return scimclient.Outcome{Status: 200, Success: true}, nil
}

func (f *fakeDispatcher) Delete(_ context.Context, endpoint, id string) (scimclient.Outcome, error) {
	f.calls = append(f.calls, call{"delete", endpoint, id, ""})
	if f.deleteErr != nil || f.deleteOutcome.Status != 0 {
		return f.deleteOutcome, f.deleteErr
	}
	return scimclient.Outcome{Status: 204, Success: true}, nil
}

func listOf(objs ...*object.Rendered) *object.List {
	l := object.NewList()
	for _, o := range objs {
		l.Add(o)
	}
	return l
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestUnchangedObjectIsCopiedNotDispatched(t *testing.T) {
	rendered := &object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"a"}`}
	current := listOf(rendered)
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"a"}`})
	dispatch := &fakeDispatcher{}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch, Now: fixedClock(time.Now())}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if len(dispatch.calls) != 0 {
		t.Fatalf("expected no SCIM calls for an unchanged object, got %v", dispatch.calls)
	}
	if counters["User"].Copies != 1 {
		t.Fatalf("expected 1 copy, got %+v", counters["User"])
	}
	if newList.Get("u1") == nil {
		t.Fatal("expected u1 to be present in the new cache")
	}
}

func TestChangedObjectIsUpdated(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"b"}`})
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"a"}`})
	dispatch := &fakeDispatcher{}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if len(dispatch.calls) != 1 || dispatch.calls[0].op != "update" {
		t.Fatalf("expected one update call, got %v", dispatch.calls)
	}
	if counters["User"].Updates != 1 {
		t.Fatalf("expected 1 update, got %+v", counters["User"])
	}
	if newList.Get("u1").JSON != `{"userName":"b"}` {
		t.Fatalf("expected new body to be cached, got %s", newList.Get("u1").JSON)
	}
}

func TestFailedUpdateStillCachesTheFreshBody(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"b"}`})
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"a"}`})
	dispatch := &fakeDispatcher{updateOutcome: scimclient.Outcome{Status: 500, Success: false}}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].UpdateFailures != 1 {
		t.Fatalf("expected 1 update failure, got %+v", counters["User"])
	}
	if newList.Get("u1").JSON != `{"userName":"b"}` {
		t.Fatalf("expected the freshly rendered body to be retained despite failure, got %s", newList.Get("u1").JSON)
	}
}

func TestNewObjectIsCreated(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	cached := object.NewList()
	dispatch := &fakeDispatcher{}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].Creates != 1 {
		t.Fatalf("expected 1 create, got %+v", counters["User"])
	}
	if newList.Get("u1") == nil {
		t.Fatal("expected created object in new cache")
	}
}

func TestFailedCreateIsNotCachedSoItRetries(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	cached := object.NewList()
	dispatch := &fakeDispatcher{createOutcome: scimclient.Outcome{Status: 409, Success: false}}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].CreateFailures != 1 {
		t.Fatalf("expected 1 create failure, got %+v", counters["User"])
	}
	if newList.Get("u1") != nil {
		t.Fatal("expected a failed create to not be cached, so it retries next run")
	}
}

func TestRemovedObjectIsDeleted(t *testing.T) {
	current := object.NewList()
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	dispatch := &fakeDispatcher{}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].Deletes != 1 {
		t.Fatalf("expected 1 delete, got %+v", counters["User"])
	}
	if newList.Get("u1") != nil {
		t.Fatal("expected deleted object to be absent from new cache")
	}
}

func Test404OnDeleteCountsAsSuccess(t *testing.T) {
	current := object.NewList()
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	dispatch := &fakeDispatcher{deleteOutcome: scimclient.Outcome{Status: 404, Success: false}}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].Deletes != 1 || counters["User"].DeleteFailures != 0 {
		t.Fatalf("expected a 404 to count as a successful delete, got %+v", counters["User"])
	}
	if newList.Get("u1") != nil {
		t.Fatal("expected object absent from new cache after a 404 delete")
	}
}

func TestFailedDeleteRetainsCachedRecord(t *testing.T) {
	current := object.NewList()
	cached := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	dispatch := &fakeDispatcher{deleteOutcome: scimclient.Outcome{Status: 500, Success: false}}

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch}
	newList, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].DeleteFailures != 1 {
		t.Fatalf("expected 1 delete failure, got %+v", counters["User"])
	}
	if newList.Get("u1") == nil {
		t.Fatal("expected the cached record retained so delete retries next run")
	}
}

func TestThresholdGuardRejectsRunBeforeAnyDispatch(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{}`})
	cached := object.NewList() // delta of 1 from 0 cached, should trip an absolute threshold of 0
	dispatch := &fakeDispatcher{}
	guard := threshold.New(map[string]threshold.Config{"User": {Absolute: 0, HasAbs: true}})

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch, Guard: guard}
	_, _, err := e.Run(context.Background(), current, cached)
	if err == nil {
		t.Fatal("expected threshold guard to reject the run")
	}
	if len(dispatch.calls) != 0 {
		t.Fatalf("expected no SCIM calls once the guard rejects the run, got %v", dispatch.calls)
	}
}

func TestSendOrderIsRespected(t *testing.T) {
	current := listOf(
		&object.Rendered{ID: "o1", Type: "Organisation", JSON: `{}`},
		&object.Rendered{ID: "u1", Type: "User", JSON: `{}`},
	)
	cached := object.NewList()
	dispatch := &fakeDispatcher{}

	e := &Engine{
		SendOrder: []string{"Organisation", "User"},
		Types:     map[string]TypeConfig{"Organisation": {Endpoint: "Organisations"}, "User": {Endpoint: "Users"}},
		Dispatch:  dispatch,
	}
	_, _, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if len(dispatch.calls) != 2 || dispatch.calls[0].endpoint != "Organisations" || dispatch.calls[1].endpoint != "Users" {
		t.Fatalf("expected Organisation to dispatch before User, got %v", dispatch.calls)
	}
}

func TestAuditLogReceivesOneLinePerOperation(t *testing.T) {
	current := listOf(&object.Rendered{ID: "u1", Type: "User", JSON: `{"userName":"a"}`})
	cached := object.NewList()
	dispatch := &fakeDispatcher{}
	logBuf := audit.NewWithWriter(new(testWriter))

	e := &Engine{SendOrder: []string{"User"}, Types: map[string]TypeConfig{"User": {Endpoint: "Users"}}, Dispatch: dispatch, Audit: logBuf}
	_, counters, err := e.Run(context.Background(), current, cached)
	if err != nil {
		t.Fatal(err)
	}
	if counters["User"].Creates != 1 {
		t.Fatalf("expected 1 create, got %+v", counters["User"])
	}
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }
