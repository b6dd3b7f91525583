package pattern

import "strings"

type Pattern string

const (
	Middleware          Pattern = "middleware"
	Factory             Pattern = "factory"
	Singleton           Pattern = "singleton"
	DependencyInjection Pattern = "dependency_injection"
	Observer            Pattern = "observer"
)

// FileContext is what an indicator may inspect: the file path plus flattened
// symbol and relationship-target names. All strings are pre-lowercased.
type FileContext struct {
	Path        string
	SymbolNames []string
	RelTargets  []string
}

// Indicator is one named signal with weight 1. Keeping indicators as data
// keeps thresholds testable in isolation.
type Indicator struct {
	Name  string
	Match func(fc FileContext) bool
}

// Rule asserts a pattern when at least Threshold of its indicators match.
type Rule struct {
	Pattern    Pattern
	Threshold  int
	Indicators []Indicator
}

func pathContains(substr string) func(FileContext) bool {
	return func(fc FileContext) bool { return strings.Contains(fc.Path, substr) }
}

func symbolContains(substr string) func(FileContext) bool {
	return func(fc FileContext) bool {
		for _, name := range fc.SymbolNames {
			if strings.Contains(name, substr) {
				return true
			}
		}
		return false
	}
}

func targetContains(substr string) func(FileContext) bool {
	return func(fc FileContext) bool {
		for _, target := range fc.RelTargets {
			if strings.Contains(target, substr) {
				return true
			}
		}
		return false
	}
}

func anyOf(fns ...func(FileContext) bool) func(FileContext) bool {
	return func(fc FileContext) bool {
		for _, fn := range fns {
			if fn(fc) {
				return true
			}
		}
		return false
	}
}

// Rules is the full indicator table. Thresholds mirror the classifier this
// detector replaces: multi-signal patterns need two hits, single-signal
// patterns need one.
var Rules = []Rule{
	{
		Pattern:   Middleware,
		Threshold: 2,
		Indicators: []Indicator{
			{Name: "middleware_path", Match: pathContains("middleware")},
			{Name: "pipeline_path", Match: pathContains("pipeline")},
			{Name: "imiddleware_symbol", Match: symbolContains("imiddleware")},
			{Name: "configure_symbol", Match: symbolContains("configure")},
			{Name: "app_use_call", Match: targetContains("app.use")},
		},
	},
	{
		Pattern:   Factory,
		Threshold: 1,
		Indicators: []Indicator{
			{Name: "factory_path", Match: pathContains("factory")},
			{Name: "factory_symbol", Match: symbolContains("factory")},
			{Name: "create_method", Match: symbolContains(".create")},
		},
	},
	{
		Pattern:   DependencyInjection,
		Threshold: 2,
		Indicators: []Indicator{
			{Name: "extensions_path", Match: pathContains("extensions")},
			{Name: "servicecollection_path", Match: pathContains("servicecollection")},
			{Name: "iservicecollection_symbol", Match: symbolContains("iservicecollection")},
			{Name: "addscoped_call", Match: targetContains("addscoped")},
			{Name: "addsingleton_call", Match: targetContains("addsingleton")},
		},
	},
	{
		Pattern:   Singleton,
		Threshold: 1,
		Indicators: []Indicator{
			{Name: "instance_symbol", Match: symbolContains("instance")},
		},
	},
	{
		Pattern:   Observer,
		Threshold: 2,
		Indicators: []Indicator{
			{Name: "observer_symbol", Match: anyOf(symbolContains("observer"), symbolContains("listener"))},
			{Name: "subscribe_call", Match: anyOf(targetContains("subscribe"), targetContains("notify"))},
			{Name: "events_path", Match: pathContains("events")},
		},
	},
}
