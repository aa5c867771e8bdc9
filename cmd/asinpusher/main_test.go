package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"asinpusher/common"
	"asinpusher/config"
)

const identifierFile = `# nightly batch
B08HBSRFK2 US
b0dw8mqfd7,uk
US@B08HBSRFK2
not-an-asin
`

type cliEnv struct {
	dir        string
	configPath string
	inputPath  string
	resultDir  string
	redis      *miniredis.Miniredis
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "asinpusher.toml"),
		inputPath:  filepath.Join(dir, "asin.txt"),
		resultDir:  filepath.Join(dir, "result"),
		redis:      miniredis.RunT(t),
	}

	dbPath := filepath.Join(dir, "crawl.db")
	db, err := common.OpenDB(context.Background(), common.DBConfig{Driver: "sqlite", Name: dbPath})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, s := range []string{
		`CREATE TABLE asin_details (asin TEXT, site TEXT, title TEXT, update_time TEXT)`,
		`INSERT INTO asin_details VALUES ('B08HBSRFK2', 'US', 'Desk Lamp', '2026-10-16 09:00:00')`,
		`INSERT INTO asin_details VALUES ('B0DW8MQFD7', 'UK', 'Old Kettle', '2026-10-15 09:00:00')`,
		`INSERT INTO asin_details VALUES ('B0DW8MQFD7', 'UK', 'Kettle', '2026-10-16 09:00:00')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	db.Close()

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(images.Close)

	cfg := fmt.Sprintf(`
[redis]
addr = %q
key = "crawl_task"

[database]
driver = "sqlite"
database = %q

[oss]
endpoint = %q
region = "us-east-1"
access_key_id = "test"
access_key_secret = "test"
bucket = "asin-images"
use_path_style = true

[verification]
db_timeout = 5
oss_timeout = 5
check_interval = 1

[export]
dir = %q

[logging]
level = "error"
`, env.redis.Addr(), dbPath, images.URL, env.resultDir)
	if err := os.WriteFile(env.configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(env.inputPath, []byte(identifierFile), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, stdin io.Reader) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func TestPushAddsTokensToRedis(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, []string{"push", "-c", env.configPath, "-f", env.inputPath, "-y"}, nil)
	if err != nil {
		t.Fatalf("push: %v\n%s", err, out)
	}
	requireContains(t, out, "2 unique, 1 duplicate, 1 invalid")
	requireContains(t, out, "newly added")

	members, err := env.redis.Members("crawl_task")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if diff := cmp.Diff([]string{"UK@B0DW8MQFD7", "US@B08HBSRFK2"}, members); diff != "" {
		t.Fatalf("members (-want +got):\n%s", diff)
	}
}

func TestPushWaitRejectsBadTableBeforeQueueWrite(t *testing.T) {
	env := setupCLIEnv(t)
	body, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	bad := strings.Replace(string(body), `driver = "sqlite"`, "driver = \"sqlite\"\nstatus_table = \"crawl-results\"", 1)
	if err := os.WriteFile(env.configPath, []byte(bad), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, []string{"push", "-c", env.configPath, "-f", env.inputPath, "--wait", "-y"}, nil)
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("push --wait = %v; want config.ErrInvalid\n%s", err, out)
	}
	if env.redis.Exists("crawl_task") {
		t.Fatalf("queue written despite invalid configuration")
	}
}

func TestPushDeclinedConfirmation(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, []string{"push", "-c", env.configPath, "-f", env.inputPath}, strings.NewReader("n\n"))
	if !errors.Is(err, errNotConfirmed) {
		t.Fatalf("push = %v; want errNotConfirmed\n%s", err, out)
	}
	requireContains(t, out, "Push 2 identifiers to redis?")
	if env.redis.Exists("crawl_task") {
		t.Fatalf("queue written despite declined confirmation")
	}
}

func TestVerifyExportsAllVerifiedBatch(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, []string{"verify", "-c", env.configPath, "-f", env.inputPath}, nil)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	requireContains(t, out, "verified 2, partially verified 0, failed 0, pending 0")

	for _, name := range []string{"US-B08HBSRFK2.json", "UK-B0DW8MQFD7.json"} {
		if _, err := os.Stat(filepath.Join(env.resultDir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(env.dir, ".asinpusher.lock")); err != nil {
		t.Fatalf("expected lock file in working directory: %v", err)
	}
}

func TestExportCommand(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, []string{"export", "-c", env.configPath, "-f", env.inputPath}, nil)
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	requireContains(t, out, "2 written, 0 missing, 0 failed")

	data, err := os.ReadFile(filepath.Join(env.resultDir, "UK-B0DW8MQFD7.json"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	requireContains(t, string(data), `"title": "Kettle"`)
}

func TestConnectivityCommand(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := runCLI(t, []string{"test", "-c", env.configPath}, nil)
	if err != nil {
		t.Fatalf("test: %v\n%s", err, out)
	}
	requireContains(t, out, "object storage")
	if strings.Contains(out, "failed") {
		t.Fatalf("connectivity check failed:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)
	target := filepath.Join(env.dir, "conf", "sample.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target}, nil)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, nil); err == nil {
		t.Fatalf("config init should refuse to overwrite")
	}

	out, err = runCLI(t, []string{"config", "validate", "-c", env.configPath}, nil)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, c := range cases {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(c.input), &out, "Push?")
		if err != nil {
			t.Fatalf("confirm(%q): %v", c.input, err)
		}
		if got != c.want {
			t.Errorf("confirm(%q) = %v; want %v", c.input, got, c.want)
		}
	}
}
