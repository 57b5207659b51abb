package catalog

import (
	"sync"

	promparser "github.com/prometheus/prometheus/promql/parser"
)

// fn is shorthand for building a static table entry.
func fn(name, description string, params ...string) (string, Entry) {
	return name, Entry{
		Signature:   SignatureFor(name, params),
		Description: description,
		ParamNames:  params,
	}
}

// builtinFunctions lists aggregations and the commonly used functions with
// hand-written parameter names. Anything else the upstream parser knows is
// added by parserFunctions.
func builtinFunctions() map[string]Entry {
	out := make(map[string]Entry)
	add := func(name string, e Entry) { out[name] = e }

	// Aggregation operators
	add(fn("sum", "Sum over dimensions", "v"))
	add(fn("avg", "Average over dimensions", "v"))
	add(fn("min", "Minimum over dimensions", "v"))
	add(fn("max", "Maximum over dimensions", "v"))
	add(fn("count", "Count number of elements in the vector", "v"))
	add(fn("group", "All values in the resulting vector are 1", "v"))
	add(fn("stddev", "Population standard deviation over dimensions", "v"))
	add(fn("stdvar", "Population standard variance over dimensions", "v"))
	add(fn("topk", "Largest k elements by sample value", "k", "v"))
	add(fn("bottomk", "Smallest k elements by sample value", "k", "v"))
	add(fn("quantile", "Calculate φ-quantile over dimensions", "φ", "v"))
	add(fn("count_values", "Count number of elements with the same value", "label", "v"))

	// Range-vector functions
	add(fn("rate", "Per-second average rate of increase of a counter", "v range-vector"))
	add(fn("irate", "Per-second instant rate of increase based on the last two samples", "v range-vector"))
	add(fn("increase", "Increase of a counter over the range", "v range-vector"))
	add(fn("delta", "Difference between the first and last value of a gauge", "v range-vector"))
	add(fn("idelta", "Difference between the last two samples of a gauge", "v range-vector"))
	add(fn("deriv", "Per-second derivative using simple linear regression", "v range-vector"))
	add(fn("changes", "Number of times the value changed within the range", "v range-vector"))
	add(fn("resets", "Number of counter resets within the range", "v range-vector"))
	add(fn("predict_linear", "Predict the value t seconds from now using linear regression", "v range-vector", "t scalar"))
	add(fn("avg_over_time", "Average value of all points in the range", "v range-vector"))
	add(fn("min_over_time", "Minimum value of all points in the range", "v range-vector"))
	add(fn("max_over_time", "Maximum value of all points in the range", "v range-vector"))
	add(fn("sum_over_time", "Sum of all values in the range", "v range-vector"))
	add(fn("count_over_time", "Count of all values in the range", "v range-vector"))
	add(fn("quantile_over_time", "φ-quantile of the values in the range", "φ scalar", "v range-vector"))
	add(fn("stddev_over_time", "Population standard deviation of the values in the range", "v range-vector"))
	add(fn("stdvar_over_time", "Population standard variance of the values in the range", "v range-vector"))
	add(fn("last_over_time", "Most recent point value in the range", "v range-vector"))
	add(fn("present_over_time", "Value 1 for any series in the range", "v range-vector"))
	add(fn("absent_over_time", "1-element vector if the range vector has no elements", "v range-vector"))

	// Instant-vector functions
	add(fn("abs", "Absolute value of all sample values", "v instant-vector"))
	add(fn("absent", "1-element vector if the vector has no elements", "v instant-vector"))
	add(fn("ceil", "Round sample values up to the nearest integer", "v instant-vector"))
	add(fn("floor", "Round sample values down to the nearest integer", "v instant-vector"))
	add(fn("round", "Round sample values to the nearest multiple of to_nearest", "v instant-vector", "to_nearest scalar"))
	add(fn("clamp", "Clamp sample values between min and max", "v instant-vector", "min scalar", "max scalar"))
	add(fn("clamp_max", "Clamp sample values to an upper limit", "v instant-vector", "max scalar"))
	add(fn("clamp_min", "Clamp sample values to a lower limit", "v instant-vector", "min scalar"))
	add(fn("exp", "Exponential function of all sample values", "v instant-vector"))
	add(fn("ln", "Natural logarithm of all sample values", "v instant-vector"))
	add(fn("log2", "Binary logarithm of all sample values", "v instant-vector"))
	add(fn("log10", "Decimal logarithm of all sample values", "v instant-vector"))
	add(fn("sqrt", "Square root of all sample values", "v instant-vector"))
	add(fn("sgn", "Sign of all sample values (-1, 0 or 1)", "v instant-vector"))
	add(fn("histogram_quantile", "φ-quantile from classic or native histogram buckets", "φ scalar", "b instant-vector"))
	add(fn("label_replace", "Regex-based relabeling of a label value", "v instant-vector", "dst_label string", "replacement string", "src_label string", "regex string"))
	add(fn("label_join", "Join the values of src_labels into dst_label", "v instant-vector", "dst_label string", "separator string", "src_label string..."))
	add(fn("sort", "Sort elements by sample value, ascending", "v instant-vector"))
	add(fn("sort_desc", "Sort elements by sample value, descending", "v instant-vector"))
	add(fn("scalar", "Sample value of a single-element vector as a scalar", "v instant-vector"))
	add(fn("vector", "Scalar as a vector without labels", "s scalar"))
	add(fn("time", "Seconds since the epoch at evaluation time"))
	add(fn("timestamp", "Timestamp of each sample", "v instant-vector"))
	add(fn("day_of_month", "Day of the month for each sample (UTC)", "v instant-vector"))
	add(fn("day_of_week", "Day of the week for each sample (UTC)", "v instant-vector"))
	add(fn("days_in_month", "Number of days in the month for each sample (UTC)", "v instant-vector"))
	add(fn("hour", "Hour of the day for each sample (UTC)", "v instant-vector"))
	add(fn("minute", "Minute of the hour for each sample (UTC)", "v instant-vector"))
	add(fn("month", "Month of the year for each sample (UTC)", "v instant-vector"))
	add(fn("year", "Year for each sample (UTC)", "v instant-vector"))
	return out
}

var builtinKeywords = []string{
	"and", "or", "unless",
	"by", "without", "on", "ignoring", "group_left", "group_right",
	"bool", "offset",
}

var builtinOperators = []string{
	"+", "-", "*", "/", "%", "^",
	"==", "!=", ">", "<", ">=", "<=",
	"=", "=~", "!~",
}

// sampleMetrics stands in for metric metadata a deployment would supply from
// its own catalog files.
var sampleMetrics = map[string]string{
	"up":                                   "Whether the target was reachable (1) or not (0)",
	"http_requests_total":                  "Total number of HTTP requests",
	"http_request_duration_seconds_bucket": "HTTP request latency histogram buckets",
	"http_request_duration_seconds_sum":    "Sum of HTTP request latencies",
	"http_request_duration_seconds_count":  "Count of HTTP request latencies",
	"node_cpu_seconds_total":               "Seconds the CPUs spent in each mode",
	"node_memory_MemAvailable_bytes":       "Memory available for starting new applications",
	"node_filesystem_avail_bytes":          "Filesystem space available to non-root users",
	"process_cpu_seconds_total":            "Total user and system CPU time spent in seconds",
	"process_resident_memory_bytes":        "Resident memory size in bytes",
	"container_cpu_usage_seconds_total":    "Cumulative CPU time consumed by the container",
	"container_memory_working_set_bytes":   "Current working set of the container",
}

var sampleLabelValues = map[string][]string{
	"environment": {"production", "staging", "development"},
	"method":      {"GET", "POST", "PUT", "DELETE", "PATCH"},
	"status":      {"200", "201", "400", "401", "403", "404", "500", "502", "503"},
	"code":        {"200", "400", "404", "500"},
	"job":         {"prometheus", "node-exporter", "api-server", "kubelet"},
	"mode":        {"idle", "user", "system", "iowait"},
	"severity":    {"critical", "warning", "info"},
}

var sampleLabels = []string{
	"instance", "job", "method", "status", "code", "environment", "le", "quantile",
	"mode", "namespace", "pod", "container", "service", "handler", "severity", "cluster",
}

// parserFunctions describes every function of the upstream PromQL parser that
// the static table does not cover, deriving parameter placeholders from the
// declared argument types.
func parserFunctions(known map[string]Entry) map[string]Entry {
	out := make(map[string]Entry)
	for name, f := range promparser.Functions {
		if _, ok := known[name]; ok {
			continue
		}
		// Skip experimental functions if not enabled.
		if f.Experimental && !promparser.EnableExperimentalFunctions {
			continue
		}
		params := make([]string, 0, len(f.ArgTypes))
		for i, t := range f.ArgTypes {
			params = append(params, placeholderForValueType(t, i))
		}
		if f.Variadic != 0 && len(params) > 0 {
			params[len(params)-1] += "..."
		}
		out[name] = Entry{
			Signature:   SignatureFor(name, params),
			Description: "PromQL function",
			ParamNames:  params,
		}
	}
	return out
}

func placeholderForValueType(vt promparser.ValueType, _ int) string {
	switch vt {
	case promparser.ValueTypeVector:
		return "v instant-vector"
	case promparser.ValueTypeMatrix:
		return "v range-vector"
	case promparser.ValueTypeScalar:
		return "scalar"
	case promparser.ValueTypeString:
		return "string"
	default:
		return "arg"
	}
}

// DefaultSpec returns the declarative form of the built-in catalog.
func DefaultSpec() Spec {
	funcs := builtinFunctions()
	for name, e := range parserFunctions(funcs) {
		funcs[name] = e
	}
	metrics := make(map[string]string, len(sampleMetrics))
	for k, v := range sampleMetrics {
		metrics[k] = v
	}
	values := make(map[string][]string, len(sampleLabelValues))
	for k, v := range sampleLabelValues {
		values[k] = clone(v)
	}
	return Spec{
		Functions:   funcs,
		Keywords:    clone(builtinKeywords),
		Operators:   clone(builtinOperators),
		Metrics:     metrics,
		Labels:      clone(sampleLabels),
		LabelValues: values,
	}
}

// FunctionsOnlySpec is DefaultSpec without the sample metric dictionary, for
// callers that bring their own metrics and labels.
func FunctionsOnlySpec() Spec {
	s := DefaultSpec()
	s.Metrics = nil
	s.Labels = nil
	s.LabelValues = nil
	return s
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the shared built-in catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(DefaultSpec())
	})
	return defaultCatalog
}
