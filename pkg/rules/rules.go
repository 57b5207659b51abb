// Package rules loads Prometheus rule files so their expressions can be
// linted and their names offered for completion.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/model/rulefmt"
	promparser "github.com/prometheus/prometheus/promql/parser"
	"go.uber.org/multierr"

	"github.com/jjo/promql-assist/pkg/catalog"
)

// Rule is one recording or alerting rule.
type Rule struct {
	File   string            `json:"file"`
	Group  string            `json:"group"`
	Name   string            `json:"name"`
	Alert  bool              `json:"alert,omitempty"`
	Expr   string            `json:"expr"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Kind is "alert" or "record".
func (r Rule) Kind() string {
	if r.Alert {
		return "alert"
	}
	return "record"
}

func (r Rule) String() string {
	return fmt.Sprintf("%s/%s %s", r.Group, r.Kind(), r.Name)
}

// ResolveSpec returns the list of rule files from a directory or glob or single file.
// - If spec contains shell wildcards (*?[...]), it's treated as a glob.
// - If spec is a directory, all .yml/.yaml files (non-recursive) are used.
// - Otherwise, spec is treated as a single file path.
func ResolveSpec(spec string) ([]string, error) {
	if strings.ContainsAny(spec, "*?[]") {
		matches, err := filepath.Glob(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", spec, err)
		}
		var out []string
		for _, m := range matches {
			if isYAML(m) {
				out = append(out, m)
			}
		}
		return out, nil
	}
	fi, err := os.Stat(spec)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", spec, err)
	}
	if fi.IsDir() {
		entries, err := os.ReadDir(spec)
		if err != nil {
			return nil, fmt.Errorf("readdir %q: %w", spec, err)
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if name := e.Name(); isYAML(name) {
				out = append(out, filepath.Join(spec, name))
			}
		}
		return out, nil
	}
	if !isYAML(spec) {
		return nil, fmt.Errorf("rules file must be .yml or .yaml: %s", spec)
	}
	return []string{spec}, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// Load parses the rule files in order. Files that fail rule validation still
// contribute their rules; files that cannot be read or decoded contribute
// none. Every problem is returned in the combined error.
func Load(files ...string) ([]Rule, error) {
	var (
		out  []Rule
		errs error
	)
	for _, file := range files {
		b, err := os.ReadFile(file)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %s: %w", file, err))
			continue
		}
		rgs, perrs := rulefmt.Parse(b, false)
		for _, e := range perrs {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, e))
		}
		if rgs == nil {
			continue
		}
		for _, g := range rgs.Groups {
			for _, r := range g.Rules {
				rule := Rule{File: file, Group: g.Name, Name: r.Record, Expr: r.Expr, Labels: r.Labels}
				if r.Alert != "" {
					rule.Name = r.Alert
					rule.Alert = true
				}
				if rule.Name == "" {
					continue
				}
				out = append(out, rule)
			}
		}
	}
	return out, errs
}

// LoadSpec resolves spec and loads the files it names.
func LoadSpec(spec string) ([]Rule, error) {
	files, err := ResolveSpec(spec)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no rule files match %q", spec)
	}
	return Load(files...)
}

// CatalogSpec derives catalog entries from rules: recording rule names become
// metrics, and the selectors, grouping labels and rule labels of every
// expression feed the label catalog. Alerting rules add the ALERTS series.
func CatalogSpec(rules []Rule) catalog.Spec {
	s := catalog.Spec{
		Metrics:     map[string]string{},
		LabelValues: map[string][]string{},
	}
	addLabel := func(name, value string) {
		if name == "" || name == labels.MetricName {
			return
		}
		s.Labels = append(s.Labels, name)
		if value != "" {
			s.LabelValues[name] = append(s.LabelValues[name], value)
		}
	}

	for _, r := range rules {
		if r.Alert {
			s.Metrics["ALERTS"] = "Alerting rule state"
			s.Metrics["ALERTS_FOR_STATE"] = "Alerting rule for-state timestamp"
			addLabel("alertname", r.Name)
			addLabel("alertstate", "firing")
			addLabel("alertstate", "pending")
		} else {
			s.Metrics[r.Name] = fmt.Sprintf("Recording rule in group %s", r.Group)
		}
		for k, v := range r.Labels {
			addLabel(k, v)
		}

		expr, err := promparser.ParseExpr(r.Expr)
		if err != nil {
			continue
		}
		promparser.Inspect(expr, func(node promparser.Node, _ []promparser.Node) error {
			switch n := node.(type) {
			case *promparser.VectorSelector:
				if n.Name != "" {
					if _, ok := s.Metrics[n.Name]; !ok {
						s.Metrics[n.Name] = ""
					}
				}
				for _, m := range n.LabelMatchers {
					value := ""
					if m.Type == labels.MatchEqual {
						value = m.Value
					}
					addLabel(m.Name, value)
				}
			case *promparser.AggregateExpr:
				for _, l := range n.Grouping {
					addLabel(l, "")
				}
			case *promparser.BinaryExpr:
				if n.VectorMatching != nil {
					for _, l := range n.VectorMatching.MatchingLabels {
						addLabel(l, "")
					}
					for _, l := range n.VectorMatching.Include {
						addLabel(l, "")
					}
				}
			}
			return nil
		})
	}
	return s
}

// Merge folds the catalog derived from rules into base. Help text already in
// base wins over the generated rule descriptions.
func Merge(base *catalog.Catalog, rules []Rule) *catalog.Catalog {
	return catalog.Merge(catalog.New(CatalogSpec(rules)), base)
}
