package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aridsondez/queuestore/internal/queue"
)

// setupEnv points the CLI at a file-backed SQLite database private to the test.
func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "cli.db"))
	t.Setenv("CREATE_SCHEMA", "true")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("queuestore %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestQueueCommands(t *testing.T) {
	setupEnv(t)

	mustRun(t, "schema", "create")
	mustRun(t, "queue", "create", "orders", "--visibility", "2s")
	mustRun(t, "queue", "create", "emails")

	var q queueView
	if err := json.Unmarshal([]byte(mustRun(t, "queue", "get", "orders")), &q); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if q.Name != "orders" || q.DefaultVisibilityTimeoutMillis != 2000 {
		t.Fatalf("queue get = %+v", q)
	}

	mustRun(t, "queue", "update", "orders", "--visibility", "5s")
	if err := json.Unmarshal([]byte(mustRun(t, "queue", "get", "orders")), &q); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if q.DefaultVisibilityTimeoutMillis != 5000 {
		t.Fatalf("after update visibility = %d, want 5000", q.DefaultVisibilityTimeoutMillis)
	}

	var list []queueView
	if err := json.Unmarshal([]byte(mustRun(t, "queue", "list")), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("queue list = %+v, want 2 queues", list)
	}

	if _, err := run(t, "queue", "create", "orders"); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("duplicate create = %v, want ErrDuplicate", err)
	}
	if _, err := run(t, "queue", "update", "nope"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("update of missing queue = %v, want ErrNotFound", err)
	}

	mustRun(t, "queue", "delete", "emails")
	if _, err := run(t, "queue", "get", "emails"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestMessageCommands(t *testing.T) {
	setupEnv(t)

	mustRun(t, "queue", "create", "jobs", "--visibility", "1s")

	var m messageView
	if err := json.Unmarshal([]byte(mustRun(t, "message", "put", "jobs", "hello", "--id", "m1")), &m); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if m.ID != "m1" || m.VisibilityTimeoutMillis != 1000 || m.LastDeliveredMillis != 0 {
		t.Fatalf("message put = %+v", m)
	}

	out := mustRun(t, "message", "pending", "jobs", "--now-ms", "999")
	if !strings.Contains(out, "no pending message") {
		t.Fatalf("pending at 999 = %q", out)
	}
	out = mustRun(t, "message", "pending", "jobs", "--now-ms", "1000")
	if !strings.Contains(out, `"id": "m1"`) {
		t.Fatalf("pending at 1000 = %q", out)
	}

	if err := json.Unmarshal([]byte(mustRun(t, "message", "claim", "jobs", "--now-ms", "5000")), &m); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if m.LastDeliveredMillis != 5000 || m.VisibleAtMillis != 6000 {
		t.Fatalf("claimed = %+v", m)
	}

	out = mustRun(t, "message", "claim", "jobs", "--now-ms", "5999")
	if !strings.Contains(out, "no pending message") {
		t.Fatalf("claim inside window = %q", out)
	}

	if err := json.Unmarshal([]byte(mustRun(t, "message", "get", "m1")), &m); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if m.LastDeliveredMillis != 5000 {
		t.Fatalf("stored last_delivered_ms = %d, want 5000", m.LastDeliveredMillis)
	}

	mustRun(t, "message", "delete", "m1")
	if _, err := run(t, "message", "get", "m1"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}

	if _, err := run(t, "message", "put", "missing", "x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("put to missing queue = %v, want ErrNotFound", err)
	}
}

func TestSchemaDrop(t *testing.T) {
	setupEnv(t)

	mustRun(t, "queue", "create", "jobs")
	mustRun(t, "schema", "drop")

	t.Setenv("CREATE_SCHEMA", "false")
	if _, err := run(t, "queue", "list"); err == nil {
		t.Fatal("queue list after schema drop succeeded")
	}
	// Dropping an absent schema is a no-op.
	mustRun(t, "schema", "drop")
}

func TestConfigRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "sqlite")
	if _, err := run(t, "queue", "list"); err == nil {
		t.Fatal("missing DATABASE_URL accepted")
	}
}
