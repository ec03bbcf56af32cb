package model

type ResponseType string

const (
	ResponseMihomo     ResponseType = "MIHOMO"
	ResponseClash      ResponseType = "CLASH"
	ResponseStash      ResponseType = "STASH"
	ResponseSingBox    ResponseType = "SINGBOX"
	ResponseXrayJSON   ResponseType = "XRAY_JSON"
	ResponseXrayBase64 ResponseType = "XRAY_BASE64"
	ResponseBlock      ResponseType = "BLOCK"
	ResponseStatus404  ResponseType = "STATUS_CODE_404"
	ResponseStatus451  ResponseType = "STATUS_CODE_451"
	ResponseSocketDrop ResponseType = "SOCKET_DROP"
	ResponseBrowser    ResponseType = "BROWSER"
)

type responseTypeInfo struct {
	contentType string
	base64      bool
	rendered    bool
}

var responseTypes = map[ResponseType]responseTypeInfo{
	ResponseMihomo:     {contentType: "text/yaml", rendered: true},
	ResponseClash:      {contentType: "text/yaml", rendered: true},
	ResponseStash:      {contentType: "text/yaml", rendered: true},
	ResponseSingBox:    {contentType: "application/json", rendered: true},
	ResponseXrayJSON:   {contentType: "application/json", rendered: true},
	ResponseXrayBase64: {contentType: "text/plain", base64: true, rendered: true},
	ResponseBlock:      {contentType: "text/plain"},
	ResponseStatus404:  {contentType: "text/plain"},
	ResponseStatus451:  {contentType: "text/plain"},
	ResponseSocketDrop: {contentType: "text/plain"},
	ResponseBrowser:    {contentType: "text/html"},
}

// ResponseTypes returns every known response type in declaration order.
func ResponseTypes() []ResponseType {
	return []ResponseType{
		ResponseMihomo, ResponseClash, ResponseStash, ResponseSingBox,
		ResponseXrayJSON, ResponseXrayBase64, ResponseBlock, ResponseStatus404,
		ResponseStatus451, ResponseSocketDrop, ResponseBrowser,
	}
}

func (t ResponseType) Valid() bool {
	_, ok := responseTypes[t]
	return ok
}

func (t ResponseType) ContentType() string {
	return responseTypes[t].contentType
}

// IsBase64 reports whether the payload is base64 encoded on the wire.
func (t ResponseType) IsBase64() bool {
	return responseTypes[t].base64
}

// Rendered reports whether the type is answered by a generator (as opposed to
// a fixed status / dropped socket / static page).
func (t ResponseType) Rendered() bool {
	return responseTypes[t].rendered
}

type RuleOperator string

const (
	RuleAND RuleOperator = "AND"
	RuleOR  RuleOperator = "OR"
)

type ConditionOperator string

const (
	CondEquals        ConditionOperator = "EQUALS"
	CondNotEquals     ConditionOperator = "NOT_EQUALS"
	CondContains      ConditionOperator = "CONTAINS"
	CondNotContains   ConditionOperator = "NOT_CONTAINS"
	CondStartsWith    ConditionOperator = "STARTS_WITH"
	CondNotStartsWith ConditionOperator = "NOT_STARTS_WITH"
	CondEndsWith      ConditionOperator = "ENDS_WITH"
	CondNotEndsWith   ConditionOperator = "NOT_ENDS_WITH"
	CondRegex         ConditionOperator = "REGEX"
	CondNotRegex      ConditionOperator = "NOT_REGEX"
)

type Condition struct {
	HeaderName    string            `json:"headerName" yaml:"headerName"`
	Operator      ConditionOperator `json:"operator" yaml:"operator"`
	Value         string            `json:"value" yaml:"value"`
	CaseSensitive bool              `json:"caseSensitive" yaml:"caseSensitive"`
}

type HeaderKV struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type ResponseModifications struct {
	Headers []HeaderKV `json:"headers,omitempty" yaml:"headers,omitempty"`
	// SubscriptionTemplate names the template to render with; empty means default.
	SubscriptionTemplate string `json:"subscriptionTemplate,omitempty" yaml:"subscriptionTemplate,omitempty"`
}

type ResponseRule struct {
	Name                  string                 `json:"name" yaml:"name"`
	Description           string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled               bool                   `json:"enabled" yaml:"enabled"`
	Operator              RuleOperator           `json:"operator" yaml:"operator"`
	Conditions            []Condition            `json:"conditions" yaml:"conditions"`
	ResponseType          ResponseType           `json:"responseType" yaml:"responseType"`
	ResponseModifications *ResponseModifications `json:"responseModifications,omitempty" yaml:"responseModifications,omitempty"`
}

// RulesConfig is evaluated in list order; the first enabled matching rule wins.
type RulesConfig struct {
	Version string         `json:"version" yaml:"version"`
	Rules   []ResponseRule `json:"rules" yaml:"rules"`
}
