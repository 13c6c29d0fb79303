package dateroute

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := []Date{
		{Year: 2021, Month: 6, Day: 4},
		{Year: 1, Month: 1, Day: 1},
		{Year: 2049, Month: 12, Day: 31},
	}
	for _, d := range cases {
		name := Encode(d)
		got, err := Decode(name)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", name, err)
		}
		if got != d {
			t.Errorf("Decode(Encode(%+v)) = %+v", d, got)
		}
	}
}

func TestDecodeMalformedNames(t *testing.T) {
	cases := []struct {
		name    string
		wantErr string
	}{
		{"a", "filename \"a\" does not end with '.txt'"},
		{"1/13-01.txt", "contains month 13 out of range"},
		{"1/01-00.txt", "contains day 0 out of range"},
	}
	for _, c := range cases {
		_, err := Decode(c.name)
		if err == nil {
			t.Fatalf("Decode(%q): expected error", c.name)
		}
		if !errors.Is(err, ErrInvalidRepoDateFilename) {
			t.Errorf("Decode(%q) error not ErrInvalidRepoDateFilename: %v", c.name, err)
		}
		if !contains(err.Error(), c.wantErr) {
			t.Errorf("Decode(%q) error = %q, want containing %q", c.name, err.Error(), c.wantErr)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestRouteTimestampKnownDate(t *testing.T) {
	name, err := RouteTimestamp(1622782862)
	if err != nil {
		t.Fatalf("RouteTimestamp error: %v", err)
	}
	if name != "2021/06-04.txt" {
		t.Errorf("name = %q, want 2021/06-04.txt", name)
	}
}

func TestAppendCreatesNowOnFirstMessage(t *testing.T) {
	dir := t.TempDir()
	r := NewRouter(dir, nil)

	if err := r.Append(context.Background(), 1622782862, []byte("1622782862\nfred\nhello there")); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	target, err := os.Readlink(filepath.Join(dir, "now"))
	if err != nil {
		t.Fatalf("Readlink now: %v", err)
	}
	if target != "2021/06-04.txt" {
		t.Errorf("now -> %q, want 2021/06-04.txt", target)
	}

	contentsBytes, err := os.ReadFile(filepath.Join(dir, "2021", "06-04.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "1622782862\nfred\nhello there\n\n"
	if string(contentsBytes) != want {
		t.Errorf("contents = %q, want %q", contentsBytes, want)
	}
}

func TestAppendSameDayAppendsWithoutRollover(t *testing.T) {
	dir := t.TempDir()
	rolloverCalled := false
	r := NewRouter(dir, func(ctx context.Context, old, new string) error {
		rolloverCalled = true
		return nil
	})

	if err := r.Append(context.Background(), 1622782862, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(context.Background(), 1622782900, []byte("b")); err != nil {
		t.Fatal(err)
	}
	if rolloverCalled {
		t.Errorf("rollover should not be called for same-day messages")
	}

	contentsBytes, err := os.ReadFile(filepath.Join(dir, "2021", "06-04.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(contentsBytes) != "a\n\nb\n\n" {
		t.Errorf("contents = %q", contentsBytes)
	}
}

func TestAppendFutureDayTriggersRolloverAndRepoints(t *testing.T) {
	dir := t.TempDir()
	var gotOld, gotNew string
	r := NewRouter(dir, func(ctx context.Context, old, new string) error {
		gotOld, gotNew = old, new
		return nil
	})

	if err := r.Append(context.Background(), 1622782862, []byte("a")); err != nil { // 2021-06-04
		t.Fatal(err)
	}
	if err := r.Append(context.Background(), 2523042062, []byte("b")); err != nil { // 2049-12-13
		t.Fatal(err)
	}

	if gotOld != "2021/06-04.txt" || gotNew != "2049/12-13.txt" {
		t.Errorf("rollover called with (%q, %q)", gotOld, gotNew)
	}

	target, err := os.Readlink(filepath.Join(dir, "now"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "2049/12-13.txt" {
		t.Errorf("now -> %q, want 2049/12-13.txt", target)
	}
}

func TestAppendPastDayAppendsToNowAnyway(t *testing.T) {
	dir := t.TempDir()
	rolloverCalled := false
	r := NewRouter(dir, func(ctx context.Context, old, new string) error {
		rolloverCalled = true
		return nil
	})

	if err := r.Append(context.Background(), 1622782862, []byte("a")); err != nil { // 2021-06-04
		t.Fatal(err)
	}
	if err := r.Append(context.Background(), 10, []byte("b")); err != nil { // 1970-01-01, past
		t.Fatal(err)
	}
	if rolloverCalled {
		t.Errorf("a past timestamp must not trigger a rollover")
	}

	contentsBytes, err := os.ReadFile(filepath.Join(dir, "2021", "06-04.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(contentsBytes) != "a\n\nb\n\n" {
		t.Errorf("contents = %q, want past message appended to the open day", contentsBytes)
	}
}
