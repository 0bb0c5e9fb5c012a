package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Lives outside package log so the frames below are not treated as logger
// internals when the stack is rendered.

func makeStackedError() error { return xerrors.New("boom") }

func TestError_StackUsesErrorCapture(t *testing.T) {
	var buf bytes.Buffer
	l, err := log.New(log.Options{App: "x", JSON: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Error(context.Background(), makeStackedError(), "stacked")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line: %v\n%s", err, buf.String())
	}
	stack, _ := m["stack"].(string)
	first, _, _ := strings.Cut(stack, "\n")
	if !strings.HasSuffix(first, "log_test.makeStackedError") {
		t.Fatalf("stack should start where the error was created, got:\n%s", stack)
	}
	if !strings.Contains(stack, "TestError_StackUsesErrorCapture") {
		t.Fatalf("stack missing caller frame:\n%s", stack)
	}
}
