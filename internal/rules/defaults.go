package rules

import "github.com/John-Robertt/subresponse-go/internal/model"

// DefaultConfig is used when no rules config has been stored. The last rule
// always matches so evaluation never fails with the built-in set.
func DefaultConfig() *model.RulesConfig {
	ua := func(op model.ConditionOperator, v string) model.Condition {
		return model.Condition{HeaderName: "User-Agent", Operator: op, Value: v}
	}
	return &model.RulesConfig{
		Version: "1",
		Rules: []model.ResponseRule{
			{
				Name:         "Browser",
				Enabled:      true,
				Operator:     model.RuleAND,
				Conditions:   []model.Condition{ua(model.CondStartsWith, "Mozilla"), {HeaderName: "Accept", Operator: model.CondContains, Value: "text/html"}},
				ResponseType: model.ResponseBrowser,
			},
			{
				Name:         "Stash",
				Enabled:      true,
				Operator:     model.RuleOR,
				Conditions:   []model.Condition{ua(model.CondContains, "stash")},
				ResponseType: model.ResponseStash,
			},
			{
				Name:     "Mihomo",
				Enabled:  true,
				Operator: model.RuleOR,
				Conditions: []model.Condition{
					ua(model.CondContains, "mihomo"),
					ua(model.CondContains, "clash.meta"),
					ua(model.CondContains, "clash-verge"),
					ua(model.CondContains, "flclash"),
					ua(model.CondContains, "koala-clash"),
				},
				ResponseType: model.ResponseMihomo,
			},
			{
				Name:         "Clash",
				Enabled:      true,
				Operator:     model.RuleOR,
				Conditions:   []model.Condition{ua(model.CondContains, "clash")},
				ResponseType: model.ResponseClash,
			},
			{
				Name:     "SingBox",
				Enabled:  true,
				Operator: model.RuleOR,
				Conditions: []model.Condition{
					ua(model.CondContains, "sing-box"),
					ua(model.CondContains, "sfa"),
					ua(model.CondContains, "sfi"),
					ua(model.CondContains, "sfm"),
					ua(model.CondContains, "hiddify"),
				},
				ResponseType: model.ResponseSingBox,
			},
			{
				Name:         "Fallback",
				Description:  "legacy base64 links for everything else",
				Enabled:      true,
				Operator:     model.RuleAND,
				Conditions:   nil,
				ResponseType: model.ResponseXrayBase64,
			},
		},
	}
}
