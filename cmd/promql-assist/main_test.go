package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jjo/promql-assist/pkg/catalog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, nil, &out, &errOut)
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeLongOpts(t *testing.T) {
	got := normalizeLongOpts([]string{"--catalog=a.yaml", "-o", "json", "check", "--", "--x"})
	want := []string{"-catalog=a.yaml", "-o", "json", "check", "--", "--x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalizeLongOpts mismatch (-want +got):\n%s", diff)
	}
}

func TestSubcommands(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"tokens", "rate(x[5m])"}, `function  "rate"`},
		{[]string{"--output", "json", "tokens", "up"}, `"type": "metric"`},
		{[]string{"context", `foo{environment="pro`}, `kind=label_value prefix="pro" label="environment"`},
		{[]string{"context", "--cursor", "3", "sum(rate(x))"}, `kind=general prefix="sum"`},
		{[]string{"complete", "http_requests_t"}, "http_requests_total"},
		{[]string{"hint", "histogram_quantile(0.9, "}, "argument 2: b instant-vector"},
		{[]string{"hint", "up"}, "No enclosing function call"},
		{[]string{"fmt", "sum(rate(foo[5m]))by(le)"}, "sum(\n  rate(foo[5m]))\n  by (le)\n"},
		{[]string{"catalog", "values", "environment"}, "development\nproduction\nstaging\n"},
		{[]string{"catalog", "dump"}, "functions:"},
		{[]string{"version"}, "promql-assist dev"},
	}
	for _, tc := range cases {
		got, err := runCLI(t, tc.args...)
		if err != nil {
			t.Errorf("%v: unexpected error: %v", tc.args, err)
			continue
		}
		if !strings.Contains(got, tc.want) {
			t.Errorf("%v: expected output to contain %q, got:\n%s", tc.args, tc.want, got)
		}
	}
}

func TestCheck(t *testing.T) {
	out, err := runCLI(t, "check", "rate(foo)")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected errCheckFailed, got %v", err)
	}
	if !strings.Contains(out, "FAIL  rate(foo)") || !strings.Contains(out, "[range-vector]") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	file := writeTemp(t, "queries.promql", "up\n# comment\n\nsum(rate(x[5m]))\n")
	out, err = runCLI(t, "check", "--file", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "OK    up\n") {
		t.Fatalf("results should keep input order, got:\n%s", out)
	}
	if !strings.Contains(out, "WARN  sum(rate(x[5m]))") {
		t.Fatalf("expected cardinality warning line, got:\n%s", out)
	}

	if _, err := runCLI(t, "check"); err == nil {
		t.Fatalf("expected error without queries")
	}
}

func TestCheck_JSON(t *testing.T) {
	out, err := runCLI(t, "-o", "json", "--strict", "check", "sum(")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected errCheckFailed, got %v", err)
	}
	for _, want := range []string{`"query": "sum("`, `"category": "bracket"`, `"category": "syntax"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in:\n%s", want, out)
		}
	}
}

func TestCatalogFlags(t *testing.T) {
	path := writeTemp(t, "metrics.prom", catalog.SampleExposition)

	out, err := runCLI(t, "--catalog", path, "catalog", "metrics")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "temperature\n") || !strings.Contains(out, "http_requests_total\n") {
		t.Fatalf("expected merged metrics, got:\n%s", out)
	}

	out, err = runCLI(t, "--no-default-catalog", "catalog", "metrics")
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Fatalf("expected no metrics without the default catalog, got:\n%s", out)
	}

	out, err = runCLI(t, "--no-default-catalog", "catalog", "functions")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "rate\n") {
		t.Fatalf("functions should survive --no-default-catalog")
	}

	if _, err := runCLI(t, "--catalog", filepath.Join(t.TempDir(), "missing.yaml"), "catalog"); err == nil {
		t.Fatalf("expected error for a missing catalog file")
	}
}

func TestCatalogDumpRoundTrip(t *testing.T) {
	dump, err := runCLI(t, "catalog", "dump")
	if err != nil {
		t.Fatal(err)
	}
	path := writeTemp(t, "dump.yaml", dump)
	spec, err := catalog.LoadFile(path)
	if err != nil {
		t.Fatalf("dump is not a loadable catalog: %v", err)
	}
	if diff := cmp.Diff(catalog.Default().Spec(), spec, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("dump round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvAndConfigFile(t *testing.T) {
	t.Setenv("PROMQL_ASSIST_OUTPUT", "json")
	out, err := runCLI(t, "hint", "rate(")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"function": "rate"`) {
		t.Fatalf("expected JSON from env var, got:\n%s", out)
	}

	t.Setenv("PROMQL_ASSIST_OUTPUT", "")
	cfg := writeTemp(t, "promql-assist.conf", "output json\n")
	out, err = runCLI(t, "--config", cfg, "catalog", "values", "mode")
	if err != nil {
		t.Fatal(err)
	}
	want := "[\n  \"idle\",\n  \"iowait\",\n  \"system\",\n  \"user\"\n]\n"
	if out != want {
		t.Fatalf("expected JSON from config file, got:\n%s", out)
	}
}

func TestUsageErrors(t *testing.T) {
	if _, err := runCLI(t); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp without subcommand, got %v", err)
	}
	if _, err := runCLI(t, "--log-level", "loud", "version"); err != nil {
		t.Fatalf("version does not build a logger, got %v", err)
	}
	if _, err := runCLI(t, "--log-level", "loud", "tokens", "up"); err == nil {
		t.Fatalf("expected invalid log level error")
	}
	if _, err := runCLI(t, "tokens"); err == nil {
		t.Fatalf("expected missing query error")
	}
	if _, err := runCLI(t, "catalog", "bogus"); err == nil {
		t.Fatalf("expected unknown section error")
	}
}

const testRules = `groups:
- name: api
  rules:
  - record: job:http_requests:rate5m
    expr: sum by (job) (rate(http_requests_total{job="checkout"}[5m]))
  - alert: TooManyRequests
    expr: job:http_requests:rate5m > 100
`

func TestRulesFlag(t *testing.T) {
	path := writeTemp(t, "rules.yaml", testRules)

	out, err := runCLI(t, "--rules", path, "complete", "job:http")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "job:http_requests:rate5m") {
		t.Fatalf("expected recording rule in completions, got:\n%s", out)
	}

	out, err = runCLI(t, "--rules", path, "catalog", "values", "job")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "checkout\n") {
		t.Fatalf("expected selector value from rule expression, got:\n%s", out)
	}

	if _, err := runCLI(t, "--rules", filepath.Join(t.TempDir(), "missing.yaml"), "catalog"); err == nil {
		t.Fatalf("expected error for missing rules")
	}
}

func TestCheck_Rules(t *testing.T) {
	path := writeTemp(t, "rules.yaml", testRules)

	out, err := runCLI(t, "check", "--rules", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK    api/alert TooManyRequests ("+path+"): job:http_requests:rate5m > 100") {
		t.Fatalf("expected alert rule line, got:\n%s", out)
	}
	if !strings.Contains(out, "api/record job:http_requests:rate5m") {
		t.Fatalf("expected recording rule line, got:\n%s", out)
	}

	out, err = runCLI(t, "-o", "json", "check", "--rules", path, "up")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"rule": "api/record job:http_requests:rate5m"`) || !strings.Contains(out, `"query": "up"`) {
		t.Fatalf("unexpected JSON:\n%s", out)
	}
}
