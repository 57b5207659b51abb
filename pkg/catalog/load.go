package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// SampleExposition provides a small Prometheus exposition set with a counter,
// a gauge and a histogram.
const SampleExposition = `
# HELP http_requests_total Total number of HTTP requests
# TYPE http_requests_total counter
http_requests_total{method="get",code="200"} 1027
http_requests_total{method="get",code="404"} 3
# HELP temperature Temperature in Celsius
# TYPE temperature gauge
temperature{room="server"} 27.3
# HELP rpc_duration_seconds RPC latency
# TYPE rpc_duration_seconds histogram
rpc_duration_seconds_bucket{service="auth",le="0.1"} 10
rpc_duration_seconds_bucket{service="auth",le="+Inf"} 12
rpc_duration_seconds_sum{service="auth"} 1.5
rpc_duration_seconds_count{service="auth"} 12
`

// LoadYAML decodes a catalog spec from YAML (JSON is accepted as a subset).
func LoadYAML(r io.Reader) (Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return Spec{}, nil
		}
		return Spec{}, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return s, nil
}

// sanitizeDirectives removes duplicate "# HELP <name> ..." and "# TYPE <name> ..." lines,
// keeping only the last occurrence for each metric name. The Prometheus parser
// otherwise errors on duplicate directives within a file.
func sanitizeDirectives(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	include := make([]bool, len(lines))
	for i := range include {
		include[i] = true
	}
	seen := map[string]map[string]bool{
		"# HELP ": {},
		"# TYPE ": {},
	}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		for directive, names := range seen {
			if !strings.HasPrefix(line, directive) {
				continue
			}
			fields := strings.Fields(line[len(directive):])
			if len(fields) == 0 {
				continue
			}
			if names[fields[0]] {
				include[i] = false
			} else {
				names[fields[0]] = true
			}
		}
	}
	var b bytes.Buffer
	for i, inc := range include {
		if !inc {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(lines[i])
	}
	return b.Bytes()
}

// LoadExposition builds a catalog spec from Prometheus text exposition data:
// metric names with their HELP text, label names and observed label values.
// Parsing is best-effort: if some families were read the error is dropped.
func LoadExposition(r io.Reader) (Spec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to read metrics: %w", err)
	}
	data = sanitizeDirectives(data)

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(bytes.NewReader(data))
	if err != nil && len(families) == 0 {
		return Spec{}, fmt.Errorf("failed to parse metrics with Prometheus parser: %w", err)
	}
	return specFromFamilies(families), nil
}

// specFromFamilies flattens parsed metric families into a Spec. Histograms
// contribute _bucket/_sum/_count names and the "le" label; summaries
// contribute _sum/_count and the "quantile" label.
func specFromFamilies(families map[string]*dto.MetricFamily) Spec {
	s := Spec{
		Metrics:     make(map[string]string),
		LabelValues: make(map[string][]string),
	}
	labelSet := make(map[string]map[string]struct{})
	observe := func(name, value string) {
		if labelSet[name] == nil {
			labelSet[name] = make(map[string]struct{})
		}
		labelSet[name][value] = struct{}{}
	}

	for _, mf := range families {
		name := mf.GetName()
		help := strings.TrimSpace(strings.ReplaceAll(mf.GetHelp(), "\n", " "))

		switch mf.GetType() {
		case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
			s.Metrics[name+"_bucket"] = help
			s.Metrics[name+"_sum"] = help
			s.Metrics[name+"_count"] = help
		case dto.MetricType_SUMMARY:
			s.Metrics[name] = help
			s.Metrics[name+"_sum"] = help
			s.Metrics[name+"_count"] = help
		default:
			s.Metrics[name] = help
		}

		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				observe(lp.GetName(), lp.GetValue())
			}
			if h := m.GetHistogram(); h != nil {
				for _, b := range h.GetBucket() {
					observe(model.BucketLabel, fmt.Sprintf("%g", b.GetUpperBound()))
				}
			}
			if sm := m.GetSummary(); sm != nil {
				for _, q := range sm.GetQuantile() {
					observe(model.QuantileLabel, fmt.Sprintf("%g", q.GetQuantile()))
				}
			}
		}
	}

	for name, values := range labelSet {
		s.Labels = append(s.Labels, name)
		for v := range values {
			s.LabelValues[name] = append(s.LabelValues[name], v)
		}
	}
	return s
}

// LoadFile reads a catalog file. .yaml, .yml and .json files hold a Spec;
// anything else is treated as Prometheus text exposition.
func LoadFile(path string) (Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		s, err := LoadYAML(f)
		if err != nil {
			return Spec{}, fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	default:
		s, err := LoadExposition(f)
		if err != nil {
			return Spec{}, fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	}
}

// LoadFiles merges every readable file into base (which may be nil) and
// returns the combined catalog along with the errors of the files that failed.
// The returned catalog is never nil.
func LoadFiles(base *Catalog, paths ...string) (*Catalog, error) {
	var (
		specs []*Catalog
		errs  error
	)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s, err := LoadFile(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		specs = append(specs, New(s))
	}
	return Merge(base, specs...), errs
}
