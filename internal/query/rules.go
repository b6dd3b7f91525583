package query

import "strings"

// The advisory heuristics live in rule tables so each rule can be unit
// tested and tuned without touching the analysis flow.

// riskBonus adds a fixed amount when its condition holds; the total is
// clamped to [0, 10] after application.
type riskBonus struct {
	Name  string
	When  func(ctx ChangeContext) bool
	Bonus int
}

var riskBonuses = []riskBonus{
	{
		Name:  "create_operation",
		When:  func(ctx ChangeContext) bool { return strings.EqualFold(ctx.Action, "CREATE") },
		Bonus: 2,
	},
	{
		Name:  "configuration_category",
		When:  func(ctx ChangeContext) bool { return strings.EqualFold(ctx.Category, "CONFIGURATION") },
		Bonus: 1,
	},
}

// seedRule inspects one seed file; ctxRule inspects the change context.
// Both emit an advisory note when matched.
type seedRule struct {
	Match func(file string) bool
	Note  string
}

type ctxRule struct {
	Match func(ctx ChangeContext) bool
	Note  string
}

func fileContains(substr string) func(string) bool {
	substr = strings.ToLower(substr)
	return func(file string) bool { return strings.Contains(strings.ToLower(file), substr) }
}

var breakingCtxRules = []ctxRule{
	{
		Match: func(ctx ChangeContext) bool { return strings.EqualFold(ctx.Action, "CREATE") },
		Note:  "New instrumentation may affect performance",
	},
}

var breakingSeedRules = []seedRule{
	{Match: fileContains("startup"), Note: "Startup configuration changes may affect application boot"},
	{Match: fileContains("extensions"), Note: "Service registration changes may affect dependency injection"},
}

var testBaseNotes = []string{
	"Unit tests for modified methods",
	"Integration tests for telemetry data collection",
}

var testFileRules = []seedRule{
	{Match: fileContains("middleware"), Note: "Middleware pipeline integration tests"},
	{Match: fileContains("extensions"), Note: "Service registration validation tests"},
}

var testCtxRules = []ctxRule{
	{
		Match: func(ctx ChangeContext) bool { return strings.EqualFold(ctx.OperationType, "span") },
		Note:  "Span validation tests",
	},
	{
		Match: func(ctx ChangeContext) bool { return strings.EqualFold(ctx.OperationType, "metric") },
		Note:  "Metrics collection validation tests",
	},
}

// clusterNameRules map a filename token to a human-readable cluster name;
// the first matching rule wins, in table order.
var clusterNameRules = []struct {
	Token string
	Name  string
}{
	{Token: "extension", Name: "Configuration Extensions"},
	{Token: "middleware", Name: "Middleware Pipeline"},
	{Token: "service", Name: "Service Layer"},
}

// entryPointTokens mark method names that look like public surface: DI
// registration helpers and host configuration hooks.
var entryPointTokens = []string{"configure", ".add"}
