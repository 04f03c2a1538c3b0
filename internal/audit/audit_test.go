package audit

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRecordFormatsSuccessLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	when := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	l.Record(when, Update, None, "User", "alice")

	want := "2026-07-31 10:30:00 update User alice\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestRecordFormatsFailureLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	when := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	l.Record(when, Create, Conflict, "User", "alice")

	want := "2026-07-31 10:30:00 create (conflict) User alice\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]FailureClass{409: Conflict, 404: NotFound, 500: Other, 400: Other}
	for status, want := range cases {
		if got := ClassifyStatus(status); got != want {
			t.Fatalf("ClassifyStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestDescribePrefersUserName(t *testing.T) {
	got := Describe("User", "uuid-1", `{"userName":"alice","displayName":"Alice A"}`)
	want := "alice (uuid-1)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDescribeFallsBackToDisplayNameWithOwner(t *testing.T) {
	got := Describe("StudentGroup", "uuid-1", `{"displayName":"Math 101","owner":{"value":"teacher-1"}}`)
	if !strings.Contains(got, "Math 101") || !strings.Contains(got, "teacher-1") || !strings.Contains(got, "uuid-1") {
		t.Fatalf("expected displayName, owner and uuid in description, got %q", got)
	}
}

func TestDescribeFallsBackToDisplayNameAlone(t *testing.T) {
	got := Describe("StudentGroup", "uuid-1", `{"displayName":"Math 101"}`)
	want := "Math 101 (uuid-1)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDescribeHandlesEmploymentShape(t *testing.T) {
	got := Describe("Employment", "uuid-1", `{"user":{"value":"u1"},"employedAt":{"value":"su1"}}`)
	want := "user: u1 employed at: su1 (uuid-1)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDescribeFallsBackToUUID(t *testing.T) {
	got := Describe("Organisation", "uuid-1", `{}`)
	if got != "uuid-1" {
		t.Fatalf("got %q, want %q", got, "uuid-1")
	}
}

func TestDescribeFallsBackToUUIDOnInvalidJSON(t *testing.T) {
	got := Describe("User", "uuid-1", `not json`)
	if got != "uuid-1" {
		t.Fatalf("got %q, want %q", got, "uuid-1")
	}
}
