package migrations

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	rendered, err := Render("test_")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	entries, err := fs.ReadDir(rendered, ".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migration files rendered")
	}

	for _, entry := range entries {
		data, err := fs.ReadFile(rendered, entry.Name())
		if err != nil {
			t.Fatalf("ReadFile %s: %v", entry.Name(), err)
		}
		sql := string(data)
		if strings.Contains(sql, "{{prefix}}") {
			t.Errorf("%s still contains an unrendered prefix placeholder", entry.Name())
		}
		if !strings.Contains(sql, "test_agent_") {
			t.Errorf("%s does not reference prefixed tables", entry.Name())
		}
	}
}

func TestRenderedFSOpen(t *testing.T) {
	rendered, err := Render("dev_")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	f, err := rendered.Open("0001_create_agent_tables.up.sql")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.IsDir() || info.Size() == 0 {
		t.Errorf("expected a non-empty regular file, got dir=%v size=%d", info.IsDir(), info.Size())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if int64(len(data)) != info.Size() {
		t.Errorf("read %d bytes, Stat reported %d", len(data), info.Size())
	}

	if _, err := rendered.Open("no-such-file.sql"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file should be fs.ErrNotExist, got %v", err)
	}
}

func TestRenderEmptyPrefix(t *testing.T) {
	rendered, err := Render("")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := fs.ReadFile(rendered, "0001_create_agent_tables.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS agent_contexts") {
		t.Error("empty prefix should yield bare table names")
	}
}
