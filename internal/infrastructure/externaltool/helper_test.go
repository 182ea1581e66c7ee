package externaltool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// fakeTool routes every spawned command to TestHelperProcess in the given
// mode and records the argv it was called with.
func fakeTool(t *testing.T, mode string) *[]string {
	t.Helper()
	captured := &[]string{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*captured = append([]string{name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "TOOL_HELPER_MODE="+mode, "TOOL_HELPER_ARGS="+strings.Join(args, "\x1f"))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

// touch creates an empty file so Command.Configured sees it.
func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := strings.Split(os.Getenv("TOOL_HELPER_ARGS"), "\x1f")

	switch os.Getenv("TOOL_HELPER_MODE") {
	case "verdict":
		fmt.Println(`{"templateId": 2, "score": 0.91}`)
	case "no-verdict":
		fmt.Println(`{"templateId": null}`)
	case "bad-json":
		fmt.Println("not-json")
	case "wrong-shape":
		fmt.Println(`{"templateId": "two"}`)
	case "analysis":
		fmt.Println(`{"status": "completed", "fields": {"total": "10.00"}, "confidence": 0.8, "modelVersion": "v3"}`)
	case "echo-stdin":
		raw, _ := io.ReadAll(os.Stdin)
		var req map[string]any
		_ = json.Unmarshal(raw, &req)
		out, _ := json.Marshal(map[string]any{"fields": map[string]any{"echo": req["text"]}})
		fmt.Println(string(out))
	case "redact":
		// Last argument is the output path.
		out := args[len(args)-1]
		_ = os.WriteFile(out, []byte("masked"), 0o644)
		fmt.Println(out)
	case "redact-status":
		_ = os.WriteFile(args[len(args)-1], []byte("masked"), 0o644)
		fmt.Println("done")
	case "redact-silent":
		_ = os.WriteFile(args[len(args)-1], []byte("masked"), 0o644)
	case "flood":
		fmt.Print(strings.Repeat("x", 4096))
	case "fail":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	}
	os.Exit(0)
}
