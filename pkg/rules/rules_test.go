package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jjo/promql-assist/pkg/catalog"
)

const sampleRules = `groups:
- name: api
  rules:
  - record: job:http_requests:rate5m
    expr: sum by (job, code) (rate(http_requests_total{job="api"}[5m]))
  - alert: HighErrorRate
    expr: job:http_requests:rate5m{code=~"5.."} > 1
    for: 10m
    labels:
      severity: page
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolveSpec(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", sampleRules)
	b := writeFile(t, dir, "b.yml", sampleRules)
	writeFile(t, dir, "notes.txt", "not rules")
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveSpec(dir)
	if err != nil {
		t.Fatalf("ResolveSpec(dir): %v", err)
	}
	if diff := cmp.Diff([]string{a, b}, got); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}

	got, err = ResolveSpec(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("ResolveSpec(glob): %v", err)
	}
	// The glob also matches the nested.yaml directory; only the extension is checked.
	if len(got) != 3 {
		t.Errorf("expected 3 glob matches, got %v", got)
	}

	if got, err := ResolveSpec(a); err != nil || len(got) != 1 {
		t.Errorf("single file: got %v, %v", got, err)
	}
	if _, err := ResolveSpec(filepath.Join(dir, "notes.txt")); err == nil {
		t.Errorf("expected error for non-YAML file")
	}
	if _, err := ResolveSpec(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", sampleRules)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Rule{
		{File: path, Group: "api", Name: "job:http_requests:rate5m", Expr: `sum by (job, code) (rate(http_requests_total{job="api"}[5m]))`},
		{File: path, Group: "api", Name: "HighErrorRate", Alert: true, Expr: `job:http_requests:rate5m{code=~"5.."} > 1`, Labels: map[string]string{"severity": "page"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if got[1].Kind() != "alert" || got[0].Kind() != "record" {
		t.Errorf("unexpected kinds: %s, %s", got[0].Kind(), got[1].Kind())
	}
	if s := got[0].String(); s != "api/record job:http_requests:rate5m" {
		t.Errorf("unexpected String(): %q", s)
	}
}

func TestLoad_KeepsGoodFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", sampleRules)
	bad := writeFile(t, dir, "bad.yaml", "groups: [\n")

	got, err := Load(bad, good, filepath.Join(dir, "missing.yaml"))
	if err == nil {
		t.Fatalf("expected errors for the bad and missing files")
	}
	if !strings.Contains(err.Error(), "bad.yaml") || !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("error should name both files: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected the good file's 2 rules, got %d", len(got))
	}
}

func TestLoadSpec_NoMatches(t *testing.T) {
	if _, err := LoadSpec(filepath.Join(t.TempDir(), "*.yaml")); err == nil {
		t.Fatalf("expected error when nothing matches")
	}
}

func TestCatalogSpec(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", sampleRules)
	rs, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	c := catalog.New(CatalogSpec(rs))

	wantMetrics := []string{"ALERTS", "ALERTS_FOR_STATE", "http_requests_total", "job:http_requests:rate5m"}
	if diff := cmp.Diff(wantMetrics, c.MetricNames()); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
	wantLabels := []string{"alertname", "alertstate", "code", "job", "severity"}
	if diff := cmp.Diff(wantLabels, c.LabelNames()); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"api"}, c.LabelValues("job")); diff != "" {
		t.Errorf("job values mismatch (-want +got):\n%s", diff)
	}
	if got := c.LabelValues("code"); len(got) != 0 {
		t.Errorf("regex matchers should not add values, got %v", got)
	}
	if diff := cmp.Diff([]string{"HighErrorRate"}, c.LabelValues("alertname")); diff != "" {
		t.Errorf("alertname values mismatch (-want +got):\n%s", diff)
	}
	if help := c.MetricHelp("job:http_requests:rate5m"); help != "Recording rule in group api" {
		t.Errorf("unexpected help: %q", help)
	}
}

func TestCatalogSpec_SkipsUnparsableExpr(t *testing.T) {
	s := CatalogSpec([]Rule{{Group: "g", Name: "broken:sum", Expr: "sum("}})
	if diff := cmp.Diff(map[string]string{"broken:sum": "Recording rule in group g"}, s.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_BaseHelpWins(t *testing.T) {
	rs := []Rule{{Group: "g", Name: "http_requests_total", Expr: "vector(1)"}}
	merged := Merge(catalog.Default(), rs)
	if got := merged.MetricHelp("http_requests_total"); got != "Total number of HTTP requests" {
		t.Errorf("base help should win, got %q", got)
	}
	if !merged.IsFunction("rate") {
		t.Errorf("functions from base must survive the merge")
	}
}
