package model

type TemplateType string

const (
	TemplateMihomo   TemplateType = "MIHOMO"
	TemplateClash    TemplateType = "CLASH"
	TemplateStash    TemplateType = "STASH"
	TemplateSingBox  TemplateType = "SINGBOX"
	TemplateXrayJSON TemplateType = "XRAY_JSON"
)

// DefaultTemplateName is implied when a rule does not name a template.
const DefaultTemplateName = "Default"

// IsYAML reports whether templates of this type are YAML documents.
func (t TemplateType) IsYAML() bool {
	switch t {
	case TemplateMihomo, TemplateClash, TemplateStash:
		return true
	default:
		return false
	}
}

func (t TemplateType) Valid() bool {
	switch t {
	case TemplateMihomo, TemplateClash, TemplateStash, TemplateSingBox, TemplateXrayJSON:
		return true
	default:
		return false
	}
}

// TemplateSource is what the store hands back for a template: either inline
// content or a URL to fetch it from.
type TemplateSource struct {
	Type      TemplateType
	Name      string
	Content   string
	SourceURL string
}
