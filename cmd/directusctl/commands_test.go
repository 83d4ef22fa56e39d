package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/directus/directustest"
	"github.com/reise69/directus-go-sdk/pkg/export"
	"github.com/reise69/directus-go-sdk/pkg/resultlog"
)

// execute runs directusctl with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// setup points directusctl at a fresh fake server and an empty home.
func setup(t *testing.T) *directustest.Server {
	t.Helper()
	srv := directustest.New(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DIRECTUS_URL", srv.URL)
	t.Setenv("DIRECTUS_TOKEN", "")
	t.Setenv("DIRECTUS_EMAIL", "")
	t.Setenv("DIRECTUS_PASSWORD", "")
	return srv
}

func seedArticles(srv *directustest.Server, n int) {
	srv.AddCollection("articles")
	rows := make([]map[string]any, n)
	for i := range rows {
		status := "draft"
		if i%3 == 0 {
			status = "published"
		}
		rows[i] = map[string]any{"title": fmt.Sprintf("Article %d", i), "status": status}
	}
	srv.AddItems("articles", rows...)
}

func TestConvertCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			"where and limit",
			[]string{"convert", "WHERE status = 'published' LIMIT 5"},
			`{"query":{"filter":{"_and":[{"status":{"_eq":"published"}}]},"limit":5}}`,
		},
		{
			"order by",
			[]string{"convert", "ORDER BY date DESC, title"},
			`{"query":{"sort":["-date","title"]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			var got, want any
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %q", out)
			}
			_ = json.Unmarshal([]byte(tt.want), &want)
			gb, _ := json.Marshal(got)
			wb, _ := json.Marshal(want)
			if string(gb) != string(wb) {
				t.Errorf("got %s\nwant %s", gb, wb)
			}
		})
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	srv := setup(t)
	srv.AddUser("ada@example.com", "secret", map[string]any{"first_name": "Ada", "last_name": "Lovelace"})

	if _, err := execute(t, "whoami"); err == nil {
		t.Fatal("whoami without a session should fail")
	}

	out, err := execute(t, "login", "--email", "ada@example.com", "--password", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "ada@example.com") {
		t.Errorf("login output %q", out)
	}
	if _, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".directusctl", "session.json")); err != nil {
		t.Fatalf("session not saved: %v", err)
	}

	out, err = execute(t, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "Ada Lovelace") || !strings.Contains(out, "ada@example.com") {
		t.Errorf("whoami output %q", out)
	}

	if _, err := execute(t, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := execute(t, "whoami"); err == nil {
		t.Error("whoami after logout should fail")
	}
}

func TestLogin_BadPassword(t *testing.T) {
	srv := setup(t)
	srv.AddUser("ada@example.com", "secret", nil)

	if _, err := execute(t, "login", "--email", "ada@example.com", "--password", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestCollectionsCmd(t *testing.T) {
	srv := setup(t)
	srv.AddCollection("directus_users", directustest.PrimaryKey("id", "uuid"))
	seedArticles(srv, 1)

	out, err := execute(t, "collections")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "directus_users") || !strings.Contains(out, "articles") {
		t.Errorf("collections output %q", out)
	}

	out, err = execute(t, "collections", "--user-only")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "directus_users") || !strings.Contains(out, "articles") {
		t.Errorf("--user-only output %q", out)
	}
}

func TestItemsCmd(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 9)

	out, err := execute(t, "items", "articles", "--sql", "WHERE status = 'published' ORDER BY -id", "--fields", "id,title")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	var items []query.Item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("output is not a JSON array: %q", out)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0]["title"] != "Article 6" || items[0]["status"] != nil {
		t.Errorf("first item = %v", items[0])
	}
}

func TestDuplicateCmd(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 4)

	out, err := execute(t, "duplicate", "articles", "articles_copy")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if !strings.Contains(out, "4 items") || len(srv.Items("articles_copy")) != 4 {
		t.Errorf("duplicate output %q, copy has %d items", out, len(srv.Items("articles_copy")))
	}
}

func TestDeleteAllCmd(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 5)

	if _, err := execute(t, "delete-all", "articles"); err == nil {
		t.Fatal("delete-all without --yes should fail")
	}
	if len(srv.Items("articles")) != 5 {
		t.Fatal("items deleted without confirmation")
	}

	out, err := execute(t, "delete-all", "articles", "--yes")
	if err != nil {
		t.Fatalf("delete-all: %v", err)
	}
	if !strings.Contains(out, "Deleted 5 items") || len(srv.Items("articles")) != 0 {
		t.Errorf("output %q, %d left", out, len(srv.Items("articles")))
	}

	out, err = execute(t, "delete-all", "articles", "--yes")
	if err != nil || !strings.Contains(out, "already empty") {
		t.Errorf("second delete-all = %q, %v", out, err)
	}
}

func TestUploadDownloadCmd(t *testing.T) {
	srv := setup(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, []byte("hello directus"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "upload", src, "--title", "Notes")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) < 4 {
		t.Fatalf("upload output %q", out)
	}
	id := fields[3]
	rec, ok := srv.FileRecord(id)
	if !ok || rec["title"] != "Notes" || rec["type"] != "text/plain" {
		t.Fatalf("file record = %v", rec)
	}

	dst := filepath.Join(dir, "copy.txt")
	if _, err := execute(t, "download", id, dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "hello directus" {
		t.Errorf("downloaded %q", got)
	}
}

func TestExportImport_File(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 25)
	srv.AddCollection("archive")
	path := filepath.Join(t.TempDir(), "articles.ndjson")

	out, err := execute(t, "export", "articles", "--sink", "file", "--output", path, "--format", "msgpack", "--compress")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Exported 25 items") {
		t.Errorf("export output %q", out)
	}

	out, err = execute(t, "import", "archive", "--from", "file", "--input", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 25 items into archive") || len(srv.Items("archive")) != 25 {
		t.Errorf("import output %q, archive has %d", out, len(srv.Items("archive")))
	}
}

func TestExport_XLSXFiltered(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 9)
	path := filepath.Join(t.TempDir(), "published.xlsx")

	if _, err := execute(t, "export", "articles", "--sink", "xlsx", "--output", path, "--sql", "WHERE status = 'published'"); err != nil {
		t.Fatalf("export: %v", err)
	}
	items, err := export.ReadXLSX(path, "articles")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Errorf("got %d rows, want 3", len(items))
	}
}

func TestExport_SQLWithResultLog(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 12)
	mr := miniredis.RunT(t)
	dbPath := filepath.Join(t.TempDir(), "export.db")

	cfgPath := writeFile(t, "directusctl.yaml", fmt.Sprintf(`
database:
  dialect: sqlite
  dsn: %s
  table: cms_items
export:
  batch_size: 5
resultlog:
  enabled: true
  addr: %s
  name: nightly
`, dbPath, mr.Addr()))

	out, err := execute(t, "--config", cfgPath, "export", "articles", "--sink", "sql")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "in 3 batches") {
		t.Errorf("export output %q", out)
	}

	raw, err := mr.Get(resultlog.DefaultPrefix + ":nightly:state")
	if err != nil {
		t.Fatalf("run result not stored: %v", err)
	}
	var r resultlog.RunResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatal(err)
	}
	if r.Status != resultlog.StatusSuccess || r.Items != 12 || r.Target != "sql" || r.Operation != "export" {
		t.Errorf("run result = %+v", r)
	}
}

func TestExport_UnknownSink(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 1)

	if _, err := execute(t, "export", "articles", "--sink", "ftp"); err == nil {
		t.Error("expected unknown sink error")
	}
}

func TestExport_Incremental(t *testing.T) {
	srv := setup(t)
	seedArticles(srv, 5)
	dir := t.TempDir()

	out, err := execute(t, "export", "articles", "--incremental", "--tracking-field", "id",
		"--output", filepath.Join(dir, "first.ndjson"))
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	if !strings.Contains(out, "Exported 5 items") {
		t.Errorf("first export output %q", out)
	}

	srv.AddItems("articles", map[string]any{"title": "Late 1"}, map[string]any{"title": "Late 2"})

	out, err = execute(t, "export", "articles", "--incremental", "--tracking-field", "id",
		"--output", filepath.Join(dir, "second.ndjson"))
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !strings.Contains(out, "Exported 2 items") {
		t.Errorf("second export output %q", out)
	}

	out, err = execute(t, "export", "articles", "--incremental", "--tracking-field", "id",
		"--output", filepath.Join(dir, "third.ndjson"))
	if err != nil {
		t.Fatalf("third export: %v", err)
	}
	if !strings.Contains(out, "Exported 0 items") {
		t.Errorf("third export output %q", out)
	}

	data, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".directusctl", "sync_state.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"last_value": "7"`) {
		t.Errorf("sync state = %s", data)
	}
}
