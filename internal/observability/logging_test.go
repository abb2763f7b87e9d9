package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")

	lc := GetContext(ctx)
	if lc.RunID != "run-123" {
		t.Errorf("expected run-123, got %s", lc.RunID)
	}
}

func TestWithGroup(t *testing.T) {
	ctx := WithGroup(context.Background(), 0, "https://example.com/a.git-abc-[\"build\"]")

	attrs := getLogAttrs(ctx)
	found := false
	for _, a := range attrs {
		if a.Key == "group" {
			found = true
			if a.Value.Int64() != 0 {
				t.Errorf("expected group index 0, got %d", a.Value.Int64())
			}
		}
	}
	if !found {
		t.Error("expected group attribute for index 0")
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithMode(ctx, "pr")
	ctx = WithPhase(ctx, "fetch")
	ctx = WithExtension(ctx, "foo")

	lc := GetContext(ctx)
	if lc.RunID != "run-1" {
		t.Error("expected run-1")
	}
	if lc.Mode != "pr" {
		t.Error("expected pr")
	}
	if lc.Phase != "fetch" {
		t.Error("expected fetch")
	}
	if lc.Extension != "foo" {
		t.Error("expected foo")
	}
}

func TestEmptyContext(t *testing.T) {
	if attrs := getLogAttrs(context.Background()); len(attrs) != 0 {
		t.Errorf("expected no attrs, got %d", len(attrs))
	}
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	ctx := WithPhase(context.Background(), "build")
	w := NewLineWriter(ctx, slog.LevelInfo, "stdout")

	_, _ = w.Write([]byte("first line\nsecond "))
	_, _ = w.Write([]byte("part\n\npartial"))
	w.Flush()

	out := buf.String()
	for _, want := range []string{"msg=\"first line\"", "msg=\"second part\"", "msg=partial", "phase=build", "stream=stdout"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 3 {
		t.Errorf("expected 3 log records, got %d:\n%s", n, out)
	}
}
