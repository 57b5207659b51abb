package validate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func categories(ds []Diagnostic) []string {
	out := []string{}
	for _, d := range ds {
		out = append(out, d.Category)
	}
	return out
}

func countCategory(ds []Diagnostic, cat string) int {
	n := 0
	for _, d := range ds {
		if d.Category == cat {
			n++
		}
	}
	return n
}

func TestValidate_EmptyInput(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		r := Validate(q)
		if r.Errors == nil || r.Warnings == nil {
			t.Fatalf("expected non-nil lists for %q", q)
		}
		if len(r.Errors) != 0 || len(r.Warnings) != 0 {
			t.Fatalf("expected no findings for %q, got %+v", q, r)
		}
	}
}

func TestValidate_BalancedBrackets(t *testing.T) {
	inputs := []string{
		`sum(rate(foo{job="a"}[5m])) by (le)`,
		`((a))`,
		`{[()]}`,
		`histogram_quantile(0.9, sum by (le) (rate(x_bucket[1m])))`,
	}
	for _, q := range inputs {
		r := Validate(q)
		if n := countCategory(r.Errors, CategoryBracket); n != 0 {
			t.Errorf("%q: expected no bracket errors, got %+v", q, r.Errors)
		}
	}
}

func TestValidate_UnmatchedClosing(t *testing.T) {
	q := `sum(foo[5m]))`
	r := Validate(q)
	var got []Diagnostic
	for _, d := range r.Errors {
		if d.Category == CategoryBracket {
			got = append(got, d)
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one bracket error, got %+v", got)
	}
	if got[0].Position != len(q)-1 {
		t.Errorf("expected position %d, got %d", len(q)-1, got[0].Position)
	}
	if got[0].Message != "unmatched ')' at position 12" {
		t.Errorf("unexpected message %q", got[0].Message)
	}
}

func TestValidate_MismatchedAndUnclosed(t *testing.T) {
	r := Validate(`({[)`)
	want := []Diagnostic{
		{Message: "unmatched ')' at position 3", Severity: Error, Position: 3, Category: CategoryBracket},
		{Message: "unclosed '(' at position 0", Severity: Error, Position: 0, Category: CategoryBracket},
		{Message: "unclosed '{' at position 1", Severity: Error, Position: 1, Category: CategoryBracket},
		{Message: "unclosed '[' at position 2", Severity: Error, Position: 2, Category: CategoryBracket},
	}
	if diff := cmp.Diff(want, r.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RangeVector(t *testing.T) {
	r := Validate("rate(foo)")
	if len(r.Errors) != 1 || r.Errors[0].Category != CategoryRangeVector {
		t.Fatalf("expected one range-vector error, got %+v", r.Errors)
	}
	if !strings.Contains(r.Errors[0].Message, "rate(metric[5m])") {
		t.Errorf("expected corrected example in message, got %q", r.Errors[0].Message)
	}
	if r.Errors[0].Position != 0 {
		t.Errorf("expected position 0, got %d", r.Errors[0].Position)
	}

	if r := Validate("rate(foo[5m])"); len(r.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", r.Errors)
	}
}

func TestValidate_RangeVectorNested(t *testing.T) {
	cases := []struct {
		q    string
		want int
	}{
		{`sum(rate(foo[5m])) / sum(increase(bar))`, 1},
		{`avg_over_time(foo{a="b"}[1h])`, 0},
		{`predict_linear(foo[1h], 3600)`, 0},
		{`max_over_time(rate(foo[5m])[1h:])`, 0},
		{`delta(foo) + deriv(bar)`, 2},
		{`irate(`, 1},
		{`increase_total + rate_of_things`, 0},
		{`first_over_time(foo)`, 1},
		{`ts_of_first_over_time(foo)`, 1},
		{`ts_of_last_over_time(foo)`, 1},
		{`ts_of_min_over_time(foo)`, 1},
		{`ts_of_max_over_time(foo)`, 1},
		{`ts_of_max_over_time(foo[10m])`, 0},
		{`mad_over_time(foo)`, 1},
		{`sum_over_time(rate(foo)[1h:])`, 1},
		{`myrate(foo) + rate_total(bar)`, 0},
	}
	for _, tc := range cases {
		r := Validate(tc.q)
		if n := countCategory(r.Errors, CategoryRangeVector); n != tc.want {
			t.Errorf("%q: expected %d range-vector errors, got %d (%+v)", tc.q, tc.want, n, r.Errors)
		}
	}
}

func TestValidate_EmptyMatcher(t *testing.T) {
	r := Validate("foo{}")
	if len(r.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", r.Errors)
	}
	if diff := cmp.Diff([]string{CategoryLabelMatcher}, categories(r.Warnings)); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
	if r.Warnings[0].Severity != Warning || r.Warnings[0].Position != 3 {
		t.Errorf("unexpected warning %+v", r.Warnings[0])
	}
}

func TestValidate_EmptyMatcherOnceByDefault(t *testing.T) {
	q := "foo{} + bar{ }"
	if n := countCategory(Validate(q).Warnings, CategoryLabelMatcher); n != 1 {
		t.Fatalf("expected a single label-matcher warning, got %d", n)
	}
	all := New(WithAllEmptyMatchers()).Validate(q)
	if n := countCategory(all.Warnings, CategoryLabelMatcher); n != 2 {
		t.Fatalf("expected two label-matcher warnings, got %d", n)
	}
}

func TestValidate_Cardinality(t *testing.T) {
	r := Validate("sum(rate(foo[5m])) + rate(bar[5m])")
	if n := countCategory(r.Warnings, CategoryCardinality); n != 1 {
		t.Fatalf("expected a single cardinality hint, got %+v", r.Warnings)
	}
	if r.Warnings[0].Severity != Info {
		t.Errorf("expected info severity, got %v", r.Warnings[0].Severity)
	}

	r = Validate(`rate(foo{job="api"}[5m])`)
	if n := countCategory(r.Warnings, CategoryCardinality); n != 0 {
		t.Fatalf("expected no cardinality hint, got %+v", r.Warnings)
	}
	r = Validate(`irate(foo[5m])`)
	if n := countCategory(r.Warnings, CategoryCardinality); n != 0 {
		t.Fatalf("irate should not trigger the rate hint, got %+v", r.Warnings)
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	r := Validate("rate(foo{}")
	if diff := cmp.Diff([]string{CategoryBracket, CategoryRangeVector}, categories(r.Errors)); diff != "" {
		t.Fatalf("error order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{CategoryLabelMatcher}, categories(r.Warnings)); diff != "" {
		t.Fatalf("warning order mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_StrictSyntax(t *testing.T) {
	v := New(WithStrictSyntax())
	if r := v.Validate(`sum(rate(foo{job="a"}[5m]))`); r.HasErrors() {
		t.Fatalf("expected valid query, got %+v", r.Errors)
	}
	r := v.Validate(`sum(foo) by`)
	if n := countCategory(r.Errors, CategorySyntax); n != 1 {
		t.Fatalf("expected one syntax error, got %+v", r.Errors)
	}
	if Validate(`sum(foo) by`).HasErrors() {
		t.Fatalf("default validator should not run the parser")
	}
}

func TestResult_All(t *testing.T) {
	r := Validate("rate(foo{})")
	all := r.All()
	if len(all) != len(r.Errors)+len(r.Warnings) {
		t.Fatalf("unexpected length %d", len(all))
	}
	if all[0].Severity != Error {
		t.Fatalf("expected errors first, got %+v", all)
	}
}
