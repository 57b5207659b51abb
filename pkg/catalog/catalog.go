// Package catalog holds the read-only dictionary the query engine classifies
// identifiers against: function signatures, keywords, operators and the known
// metric names, label names and label values.
package catalog

import (
	"sort"
	"strings"
)

// Entry describes a callable PromQL function or aggregation.
type Entry struct {
	Signature   string   `yaml:"signature" json:"signature"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	ParamNames  []string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Spec is the declarative form of a catalog, as read from YAML files or
// produced from exposition text.
type Spec struct {
	Functions   map[string]Entry    `yaml:"functions,omitempty" json:"functions,omitempty"`
	Keywords    []string            `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Operators   []string            `yaml:"operators,omitempty" json:"operators,omitempty"`
	Metrics     map[string]string   `yaml:"metrics,omitempty" json:"metrics,omitempty"` // name -> help text
	Labels      []string            `yaml:"labels,omitempty" json:"labels,omitempty"`
	LabelValues map[string][]string `yaml:"label_values,omitempty" json:"label_values,omitempty"`
}

// Catalog is an immutable lookup table built from a Spec. All methods are safe
// for concurrent use.
type Catalog struct {
	functions   map[string]Entry
	keywords    map[string]struct{}
	operators   map[string]struct{}
	metrics     map[string]string
	labels      map[string]struct{}
	labelValues map[string][]string

	// sorted views, computed once
	functionNames []string
	keywordNames  []string
	operatorNames []string
	metricNames   []string
	labelNames    []string
}

// New builds a Catalog from s. The spec is copied; later changes to s do not
// affect the returned catalog. Label names that only appear as keys of
// LabelValues are registered as labels too.
func New(s Spec) *Catalog {
	c := &Catalog{
		functions:   make(map[string]Entry, len(s.Functions)),
		keywords:    make(map[string]struct{}, len(s.Keywords)),
		operators:   make(map[string]struct{}, len(s.Operators)),
		metrics:     make(map[string]string, len(s.Metrics)),
		labels:      make(map[string]struct{}, len(s.Labels)),
		labelValues: make(map[string][]string, len(s.LabelValues)),
	}
	for name, e := range s.Functions {
		if name == "" {
			continue
		}
		c.functions[name] = cloneEntry(e)
	}
	for _, kw := range s.Keywords {
		if kw != "" {
			c.keywords[kw] = struct{}{}
		}
	}
	for _, op := range s.Operators {
		if op != "" {
			c.operators[op] = struct{}{}
		}
	}
	for name, help := range s.Metrics {
		if name != "" {
			c.metrics[name] = help
		}
	}
	for _, l := range s.Labels {
		if l != "" {
			c.labels[l] = struct{}{}
		}
	}
	for l, vals := range s.LabelValues {
		if l == "" {
			continue
		}
		c.labels[l] = struct{}{}
		c.labelValues[l] = uniqSorted(vals)
	}

	c.functionNames = sortedKeys(c.functions)
	c.keywordNames = sortedKeys(c.keywords)
	c.operatorNames = sortedKeys(c.operators)
	c.metricNames = sortedKeys(c.metrics)
	c.labelNames = sortedKeys(c.labels)
	return c
}

// Function returns the entry for a function name.
func (c *Catalog) Function(name string) (Entry, bool) {
	e, ok := c.functions[name]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(e), true
}

// IsFunction reports whether name is a known function or aggregation.
func (c *Catalog) IsFunction(name string) bool {
	_, ok := c.functions[name]
	return ok
}

// IsKeyword reports whether name is a reserved keyword.
func (c *Catalog) IsKeyword(name string) bool {
	_, ok := c.keywords[name]
	return ok
}

// IsOperator reports whether op is a known operator.
func (c *Catalog) IsOperator(op string) bool {
	_, ok := c.operators[op]
	return ok
}

// IsMetric reports whether name is a known metric.
func (c *Catalog) IsMetric(name string) bool {
	_, ok := c.metrics[name]
	return ok
}

// IsLabel reports whether name is a known label.
func (c *Catalog) IsLabel(name string) bool {
	_, ok := c.labels[name]
	return ok
}

// MetricHelp returns the help text recorded for a metric, if any.
func (c *Catalog) MetricHelp(name string) string {
	return c.metrics[name]
}

// FunctionNames returns the sorted function names.
func (c *Catalog) FunctionNames() []string { return clone(c.functionNames) }

// Keywords returns the sorted keywords.
func (c *Catalog) Keywords() []string { return clone(c.keywordNames) }

// Operators returns the sorted operators.
func (c *Catalog) Operators() []string { return clone(c.operatorNames) }

// MetricNames returns the sorted metric names.
func (c *Catalog) MetricNames() []string { return clone(c.metricNames) }

// LabelNames returns the sorted label names.
func (c *Catalog) LabelNames() []string { return clone(c.labelNames) }

// LabelValues returns the sorted known values of a label; nil when the label
// has no recorded values.
func (c *Catalog) LabelValues(label string) []string {
	return clone(c.labelValues[label])
}

// Spec returns a deep copy of the catalog contents.
func (c *Catalog) Spec() Spec {
	s := Spec{
		Functions:   make(map[string]Entry, len(c.functions)),
		Keywords:    c.Keywords(),
		Operators:   c.Operators(),
		Metrics:     make(map[string]string, len(c.metrics)),
		Labels:      c.LabelNames(),
		LabelValues: make(map[string][]string, len(c.labelValues)),
	}
	for name, e := range c.functions {
		s.Functions[name] = cloneEntry(e)
	}
	for name, help := range c.metrics {
		s.Metrics[name] = help
	}
	for l, vals := range c.labelValues {
		s.LabelValues[l] = clone(vals)
	}
	return s
}

// Merge returns a new catalog holding the union of base and others. Function
// entries and metric help from later catalogs replace earlier ones; sets and
// label values are unioned. Nil catalogs are skipped.
func Merge(base *Catalog, others ...*Catalog) *Catalog {
	var s Spec
	if base != nil {
		s = base.Spec()
	}
	for _, o := range others {
		if o == nil {
			continue
		}
		s = mergeSpec(s, o.Spec())
	}
	return New(s)
}

// mergeSpec folds b into a and returns the result.
func mergeSpec(a, b Spec) Spec {
	if a.Functions == nil {
		a.Functions = make(map[string]Entry)
	}
	for name, e := range b.Functions {
		a.Functions[name] = e
	}
	a.Keywords = append(a.Keywords, b.Keywords...)
	a.Operators = append(a.Operators, b.Operators...)
	if a.Metrics == nil {
		a.Metrics = make(map[string]string)
	}
	for name, help := range b.Metrics {
		// Keep an existing help text when the newer source has none
		if help == "" && a.Metrics[name] != "" {
			continue
		}
		a.Metrics[name] = help
	}
	a.Labels = append(a.Labels, b.Labels...)
	if a.LabelValues == nil {
		a.LabelValues = make(map[string][]string)
	}
	for l, vals := range b.LabelValues {
		a.LabelValues[l] = append(a.LabelValues[l], vals...)
	}
	return a
}

// SignatureFor renders "name(p1, p2)" from a function name and its params.
func SignatureFor(name string, params []string) string {
	return name + "(" + strings.Join(params, ", ") + ")"
}

func cloneEntry(e Entry) Entry {
	e.ParamNames = clone(e.ParamNames)
	return e
}

func clone(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	copy(out, ss)
	return out
}

func uniqSorted(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
