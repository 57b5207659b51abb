package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize_Classification(t *testing.T) {
	got := Tokenize(`sum(rate(http_requests_total{method="GET"}[5m])) by (job)`, nil)
	want := []Token{
		{"sum", Function},
		{"(", Bracket},
		{"rate", Function},
		{"(", Bracket},
		{"http_requests_total", Metric},
		{"{", Bracket},
		{"method", Label},
		{"=", Operator},
		{`"GET"`, String},
		{"}", Bracket},
		{"[", Bracket},
		{"5m", Duration},
		{"]", Bracket},
		{")", Bracket},
		{")", Bracket},
		{" ", Plain},
		{"by", Keyword},
		{" ", Plain},
		{"(", Bracket},
		{"job", Label},
		{")", Bracket},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenize_Operators(t *testing.T) {
	cases := []struct {
		in   string
		want []Token
	}{
		{"a=~b", []Token{{"a", Plain}, {"=~", Operator}, {"b", Plain}}},
		{"x!=y", []Token{{"x", Plain}, {"!=", Operator}, {"y", Plain}}},
		{"1>=2", []Token{{"1", Number}, {">=", Operator}, {"2", Number}}},
		{"3<4", []Token{{"3", Number}, {"<", Operator}, {"4", Number}}},
		{"a^2", []Token{{"a", Plain}, {"^", Operator}, {"2", Number}}},
		{"!", []Token{{"!", Operator}}},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in, nil)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestTokenize_NumbersAndDurations(t *testing.T) {
	cases := []struct {
		in   string
		want []Token
	}{
		{"1.5", []Token{{"1.5", Number}}},
		{"30s", []Token{{"30s", Duration}}},
		{"1h", []Token{{"1h", Duration}}},
		{"2y", []Token{{"2y", Duration}}},
		// a second dot ends the number
		{"1.2.3", []Token{{"1.2", Number}, {".", Plain}, {"3", Number}}},
		// only one unit character is consumed
		{"5ms", []Token{{"5m", Duration}, {"s", Plain}}},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in, nil)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestTokenize_Strings(t *testing.T) {
	got := Tokenize(`{a="x\"y",b='z'}`, nil)
	want := []Token{
		{"{", Bracket},
		{"a", Plain},
		{"=", Operator},
		{`"x\"y"`, String},
		{",", Plain},
		{"b", Plain},
		{"=", Operator},
		{"'z'", String},
		{"}", Bracket},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}

	unterminated := Tokenize(`foo{job="api`, nil)
	last := unterminated[len(unterminated)-1]
	if last.Text != `"api` || last.Type != String {
		t.Fatalf("expected unterminated string token, got %+v", last)
	}
}

func TestTokenize_KeywordsAndWhitespace(t *testing.T) {
	got := Tokenize("a  and\t\nb offset 5m", nil)
	want := []Token{
		{"a", Plain},
		{"  ", Plain},
		{"and", Keyword},
		{"\t\n", Plain},
		{"b", Plain},
		{" ", Plain},
		{"offset", Keyword},
		{" ", Plain},
		{"5m", Duration},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	if got := Tokenize("", nil); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestTokenize_CoversInput(t *testing.T) {
	inputs := []string{
		`sum(rate(foo[5m]))by(le)`,
		`histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket{job="api"}[5m])) by (le))`,
		`foo{bar=~"a|b", baz!="c"} / on(instance) group_left bar`,
		`{{}}])(`,
		`"unterminated \`,
		`temperatur€ > 3.14 # ünïcödé`,
		"@;`~$",
		"\xff\xfe broken utf8",
	}
	for _, in := range inputs {
		toks := Tokenize(in, nil)
		if got := Join(toks); got != in {
			t.Errorf("Join(Tokenize(%q)) = %q", in, got)
		}
		for _, tok := range toks {
			if tok.Text == "" {
				t.Errorf("empty token in %q", in)
			}
		}
	}
}

func TestTokenize_UnicodeIdentifier(t *testing.T) {
	got := Tokenize("températ€", nil)
	want := []Token{{"températ", Plain}, {"€", Plain}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenType_String(t *testing.T) {
	if Function.String() != "function" || Duration.String() != "duration" {
		t.Fatalf("unexpected names: %s %s", Function, Duration)
	}
	if TokenType(99).String() != "unknown" {
		t.Fatalf("expected unknown for out of range type")
	}
}
