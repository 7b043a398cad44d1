package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validGraph = `{"symbol":"AAPL","entryNode":"cond1","nodes":[
  {"id":"cond1","type":"condition","expr":{"kind":"binary","op":"<",
    "left":{"kind":"funcCall","name":"rsi","args":[{"kind":"identifier","name":"close"},{"kind":"numberLiteral","value":14}]},
    "right":{"kind":"numberLiteral","value":30}},
   "nextIfTrue":"buy","nextIfFalse":"noop"},
  {"id":"buy","type":"action","actionType":"ENTER_LONG","symbol":"AAPL","qty":10,"qtyType":"PERCENT_EQUITY","next":null},
  {"id":"noop","type":"action","actionType":"NO_ACTION","next":null}]}`

const brokenGraph = `{"symbol":"AAPL","entryNode":"ghost","nodes":[
  {"id":"a","type":"action","actionType":"NO_ACTION","next":null}]}`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExpandArgs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), "{}")
	writeFile(t, filepath.Join(dir, "nested", "deep", "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), "")

	files, err := expandArgs([]string{
		filepath.Join(dir, "**", "*.json"),
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "missing.json"),
		filepath.Join(dir, "*.yaml"),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "nested", "deep", "b.json"),
		filepath.Join(dir, "missing.json"),
	}
	if strings.Join(files, "\n") != strings.Join(want, "\n") {
		t.Errorf("files = %v, want %v", files, want)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good", "rsi.json"), validGraph)

	out, err := execute(t, "validate", filepath.Join(dir, "**", "*.json"), "--json=false")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "rsi.json: VALID") {
		t.Errorf("output = %q", out)
	}

	writeFile(t, filepath.Join(dir, "bad.json"), brokenGraph)
	out, err = execute(t, "validate", filepath.Join(dir, "bad.json"))
	if err == nil {
		t.Fatal("expected failure for an invalid graph")
	}
	if !strings.Contains(out, "bad.json: INVALID") || !strings.Contains(out, "  error: ") {
		t.Errorf("output = %q", out)
	}
}

func TestRepairCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.json")
	outFile := filepath.Join(dir, "fixed.json")
	writeFile(t, in, `{"entryNode":"buy","nodes":[{"id":"buy","type":"action","actionType":"ENTER_LONG","next":null}]}`)

	out, err := execute(t, "repair", in, "--symbol", "tsla", "-o", outFile)
	if err != nil {
		t.Fatalf("repair: %v\n%s", err, out)
	}
	if !strings.Contains(out, "fix: Auto-fixed") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"symbol": "TSLA"`) {
		t.Errorf("repaired graph = %s", data)
	}
}

func TestCatalogCommandYAML(t *testing.T) {
	out, err := execute(t, "catalog", "--format", "yaml")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.HasPrefix(out, "dsl_spec:") || !strings.Contains(out, "name: rsi") {
		t.Errorf("yaml output starts %q", out[:min(len(out), 80)])
	}
	catalogFormat = "json"
}
