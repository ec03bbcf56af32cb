package rules

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func mustCompile(t *testing.T, cfg *model.RulesConfig) *Evaluator {
	t.Helper()
	ev, err := Compile(cfg)
	require.NoError(t, err)
	return ev
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	cfg := &model.RulesConfig{
		Version: "1",
		Rules: []model.ResponseRule{
			{Name: "r1", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseBlock,
				Conditions: []model.Condition{{HeaderName: "user-agent", Operator: model.CondContains, Value: "bot"}}},
			{Name: "r2", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseMihomo,
				Conditions: []model.Condition{{HeaderName: "User-Agent", Operator: model.CondContains, Value: "bot"}}},
		},
	}
	ev := mustCompile(t, cfg)

	d, err := ev.Evaluate(headers("User-Agent", "SomeBot/1.0"))
	require.NoError(t, err)
	assert.Equal(t, "r1", d.RuleName)
	assert.Equal(t, model.ResponseBlock, d.ResponseType)
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	cfg := &model.RulesConfig{
		Version: "1",
		Rules: []model.ResponseRule{
			{Name: "off", Enabled: false, Operator: model.RuleAND, ResponseType: model.ResponseBlock},
			{Name: "on", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseSingBox},
		},
	}
	d, err := mustCompile(t, cfg).Evaluate(http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "on", d.RuleName)
}

func TestEvaluate_EmptyConditions(t *testing.T) {
	and := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "and", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseClash},
	}}
	d, err := mustCompile(t, and).Evaluate(http.Header{})
	require.NoError(t, err)
	assert.Equal(t, model.ResponseClash, d.ResponseType)

	or := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "or", Enabled: true, Operator: model.RuleOR, ResponseType: model.ResponseClash},
	}}
	_, err = mustCompile(t, or).Evaluate(http.Header{})
	var ee *EvalError
	require.True(t, errors.As(err, &ee), "expected *EvalError, got %T", err)
	assert.Equal(t, "NO_MATCHING_RULE", ee.AppError.Code)
	assert.Equal(t, "evaluate_rules", ee.AppError.Stage)
}

func TestEvaluate_CaseInsensitiveContainsIsInvariant(t *testing.T) {
	cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "ci", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseStash,
			Conditions: []model.Condition{{HeaderName: "User-Agent", Operator: model.CondContains, Value: "StAsH"}}},
		{Name: "fallback", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseXrayBase64},
	}}
	ev := mustCompile(t, cfg)

	for _, ua := range []string{"stash/2.4", "STASH/2.4", "Stash/2.4", "sTaSh/2.4"} {
		d, err := ev.Evaluate(headers("User-Agent", ua))
		require.NoError(t, err)
		assert.Equal(t, "ci", d.RuleName, "ua=%q", ua)
	}
}

func TestEvaluate_CaseSensitive(t *testing.T) {
	cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "cs", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseStash,
			Conditions: []model.Condition{{HeaderName: "User-Agent", Operator: model.CondEquals, Value: "Stash", CaseSensitive: true}}},
		{Name: "fallback", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseXrayBase64},
	}}
	ev := mustCompile(t, cfg)

	d, err := ev.Evaluate(headers("User-Agent", "stash"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", d.RuleName)

	d, err = ev.Evaluate(headers("User-Agent", "Stash"))
	require.NoError(t, err)
	assert.Equal(t, "cs", d.RuleName)
}

func TestEvaluate_Operators(t *testing.T) {
	cases := []struct {
		op    model.ConditionOperator
		value string
		ua    string
		want  bool
	}{
		{model.CondEquals, "happ/1.0", "Happ/1.0", true},
		{model.CondNotEquals, "happ/1.0", "Happ/1.0", false},
		{model.CondContains, "ray", "v2rayNG/1.8.30", true},
		{model.CondNotContains, "ray", "v2rayNG/1.8.30", false},
		{model.CondStartsWith, "v2ray", "v2rayNG/1.8.30", true},
		{model.CondNotStartsWith, "v2ray", "Happ/1.0", true},
		{model.CondEndsWith, "1.0", "Happ/1.0", true},
		{model.CondNotEndsWith, "1.0", "Happ/1.0", false},
		{model.CondRegex, `^v2rayn(g)?/\d+`, "v2rayNG/1.8.30", true},
		{model.CondNotRegex, `^clash`, "v2rayNG/1.8.30", true},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
				{Name: "x", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseBlock,
					Conditions: []model.Condition{{HeaderName: "User-Agent", Operator: tc.op, Value: tc.value}}},
			}}
			_, err := mustCompile(t, cfg).Evaluate(headers("User-Agent", tc.ua))
			assert.Equal(t, tc.want, err == nil, "op=%s err=%v", tc.op, err)
		})
	}
}

func TestEvaluate_MissingHeaderNeverMatches(t *testing.T) {
	for _, op := range []model.ConditionOperator{model.CondNotEquals, model.CondNotContains, model.CondNotRegex} {
		cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
			{Name: "neg", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseBlock,
				Conditions: []model.Condition{{HeaderName: "X-Client", Operator: op, Value: "x"}}},
		}}
		_, err := mustCompile(t, cfg).Evaluate(http.Header{})
		assert.Error(t, err, "op=%s", op)
	}
}

func TestEvaluate_MultipleHeaderValuesJoined(t *testing.T) {
	cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "joined", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseBlock,
			Conditions: []model.Condition{{HeaderName: "Accept", Operator: model.CondEquals, Value: "a, b"}}},
	}}
	_, err := mustCompile(t, cfg).Evaluate(headers("Accept", "a", "Accept", "b"))
	assert.NoError(t, err)
}

func TestEvaluate_NonCanonicalHeaderKeys(t *testing.T) {
	cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "ua", Enabled: true, Operator: model.RuleAND, ResponseType: model.ResponseMihomo,
			Conditions: []model.Condition{{HeaderName: "User-Agent", Operator: model.CondContains, Value: "mihomo"}}},
	}}
	ev := mustCompile(t, cfg)

	d, err := ev.Evaluate(http.Header{"user-agent": {"mihomo/1.18"}})
	require.NoError(t, err)
	assert.Equal(t, "ua", d.RuleName)

	_, err = ev.Evaluate(http.Header{"USER-AGENT": {"curl/8"}})
	assert.Error(t, err)
}

func TestEvaluate_ORMatchesAny(t *testing.T) {
	cfg := &model.RulesConfig{Version: "1", Rules: []model.ResponseRule{
		{Name: "any", Enabled: true, Operator: model.RuleOR, ResponseType: model.ResponseSingBox,
			Conditions: []model.Condition{
				{HeaderName: "User-Agent", Operator: model.CondContains, Value: "sing-box"},
				{HeaderName: "User-Agent", Operator: model.CondContains, Value: "hiddify"},
			}},
	}}
	d, err := mustCompile(t, cfg).Evaluate(headers("User-Agent", "HiddifyNext/2.0"))
	require.NoError(t, err)
	assert.Equal(t, model.ResponseSingBox, d.ResponseType)
}

func TestDecision_TemplateName(t *testing.T) {
	assert.Equal(t, model.DefaultTemplateName, Decision{}.TemplateName())
	d := Decision{Modifications: &model.ResponseModifications{SubscriptionTemplate: "Gaming"}}
	assert.Equal(t, "Gaming", d.TemplateName())
}

func TestDefaultConfig(t *testing.T) {
	ev := mustCompile(t, DefaultConfig())

	cases := map[string]model.ResponseType{
		"clash-verge/v1.7.7":   model.ResponseMihomo,
		"ClashforWindows/0.20": model.ResponseClash,
		"Stash/2.4.1":          model.ResponseStash,
		"SFA/1.9.0":            model.ResponseSingBox,
		"v2rayNG/1.8.30":       model.ResponseXrayBase64,
		"":                     model.ResponseXrayBase64,
	}
	for ua, want := range cases {
		d, err := ev.Evaluate(headers("User-Agent", ua))
		require.NoError(t, err, "ua=%q", ua)
		assert.Equal(t, want, d.ResponseType, "ua=%q", ua)
	}

	d, err := ev.Evaluate(headers("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)", "Accept", "text/html,application/xhtml+xml"))
	require.NoError(t, err)
	assert.Equal(t, model.ResponseBrowser, d.ResponseType)
}

func TestParseConfig_JSONAndYAML(t *testing.T) {
	js := `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[],"responseType":"BLOCK","responseModifications":{"headers":[{"key":"X-A","value":"1"}],"subscriptionTemplate":"Alt"}}]}`
	cfg, err := ParseConfig("inline", []byte(js))
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "Alt", cfg.Rules[0].ResponseModifications.SubscriptionTemplate)
	assert.Equal(t, []model.HeaderKV{{Key: "X-A", Value: "1"}}, cfg.Rules[0].ResponseModifications.Headers)

	yml := strings.Join([]string{
		`version: "1"`,
		`rules:`,
		`  - name: ua`,
		`    enabled: true`,
		`    operator: OR`,
		`    responseType: MIHOMO`,
		`    conditions:`,
		`      - headerName: User-Agent`,
		`        operator: REGEX`,
		`        value: "mihomo|clash\\.meta"`,
		`        caseSensitive: false`,
	}, "\n")
	cfg, err = ParseConfig("rules.yaml", []byte(yml))
	require.NoError(t, err)
	assert.Equal(t, model.CondRegex, cfg.Rules[0].Conditions[0].Operator)
}

func TestParseConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":            "   ",
		"unknown field":    `{"version":"1","rules":[],"extra":1}`,
		"no version":       `{"rules":[]}`,
		"bad operator":     `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"XOR","conditions":[],"responseType":"BLOCK"}]}`,
		"bad type":         `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[],"responseType":"QUANX"}]}`,
		"bad cond op":      `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[{"headerName":"A","operator":"LIKE","value":"x"}],"responseType":"BLOCK"}]}`,
		"bad regex":        `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[{"headerName":"A","operator":"REGEX","value":"("}],"responseType":"BLOCK"}]}`,
		"empty headerName": `{"version":"1","rules":[{"name":"a","enabled":true,"operator":"AND","conditions":[{"headerName":" ","operator":"EQUALS","value":"x"}],"responseType":"BLOCK"}]}`,
		"multi doc yaml":   "version: \"1\"\nrules: []\n---\nversion: \"2\"\n",
		"trailing json":    `{"version":"1","rules":[]} {}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig("src", []byte(in))
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected *ParseError, got %T: %v", err, err)
			assert.Equal(t, "parse_rules", pe.AppError.Stage)
		})
	}
}
