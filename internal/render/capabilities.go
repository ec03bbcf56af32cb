package render

import (
	"fmt"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

// Capability describes what a target can express.
type Capability struct {
	Target       Target
	TemplateType model.TemplateType // "" when the target renders without a template
	ContentType  string

	// EmitsPerHost is set when the payload is a list of independent documents,
	// one per host, instead of one merged document.
	EmitsPerHost bool

	Protocols map[model.Protocol]bool
	Networks  map[model.Network]bool
	Security  map[model.Security]bool
}

func set[T comparable](vs ...T) map[T]bool {
	m := make(map[T]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

var (
	allProtocols = set(model.ProtocolVLESS, model.ProtocolTrojan, model.ProtocolShadowsocks)
	allNetworks  = set(model.NetworkTCP, model.NetworkRaw, model.NetworkWS, model.NetworkGRPC, model.NetworkHTTPUpgrade, model.NetworkXHTTP)
	allSecurity  = set(model.SecurityNone, model.SecurityTLS, model.SecurityReality)

	// VLESS is left out of the Clash family on purpose: the clients this
	// family is served to are matched to trojan/shadowsocks only.
	clashProtocols = set(model.ProtocolTrojan, model.ProtocolShadowsocks)
)

var capabilities = map[Target]Capability{
	TargetMihomo: {
		Target: TargetMihomo, TemplateType: model.TemplateMihomo, ContentType: "text/yaml",
		Protocols: clashProtocols,
		Networks:  set(model.NetworkTCP, model.NetworkRaw, model.NetworkWS, model.NetworkGRPC, model.NetworkHTTPUpgrade),
		Security:  allSecurity,
	},
	TargetClash: {
		Target: TargetClash, TemplateType: model.TemplateClash, ContentType: "text/yaml",
		Protocols: clashProtocols,
		Networks:  set(model.NetworkTCP, model.NetworkRaw, model.NetworkWS, model.NetworkGRPC),
		Security:  set(model.SecurityNone, model.SecurityTLS),
	},
	TargetStash: {
		Target: TargetStash, TemplateType: model.TemplateStash, ContentType: "text/yaml",
		Protocols: clashProtocols,
		Networks:  set(model.NetworkTCP, model.NetworkRaw, model.NetworkWS, model.NetworkGRPC),
		Security:  set(model.SecurityNone, model.SecurityTLS),
	},
	TargetSingBox: {
		Target: TargetSingBox, TemplateType: model.TemplateSingBox, ContentType: "application/json",
		Protocols: allProtocols,
		Networks:  set(model.NetworkTCP, model.NetworkRaw, model.NetworkWS, model.NetworkGRPC, model.NetworkHTTPUpgrade),
		Security:  allSecurity,
	},
	TargetXrayJSON: {
		Target: TargetXrayJSON, TemplateType: model.TemplateXrayJSON, ContentType: "application/json",
		EmitsPerHost: true,
		Protocols:    allProtocols,
		Networks:     allNetworks,
		Security:     allSecurity,
	},
	TargetXrayBase64: {
		Target: TargetXrayBase64, ContentType: "text/plain",
		Protocols: allProtocols,
		Networks:  allNetworks,
		Security:  allSecurity,
	},
	TargetRaw: {
		Target: TargetRaw, ContentType: "application/json",
		Protocols: allProtocols,
		Networks:  allNetworks,
		Security:  allSecurity,
	},
	TargetOutline: {
		Target: TargetOutline, ContentType: "application/json",
		Protocols: set(model.ProtocolShadowsocks),
		Networks:  set(model.NetworkTCP, model.NetworkRaw),
		Security:  set(model.SecurityNone),
	},
}

// Capabilities returns the capability table entry for t.
func Capabilities(t Target) (Capability, bool) {
	c, ok := capabilities[t]
	return c, ok
}

// TemplateTypeFor returns the template the target needs under opt. The
// Base64 target needs the Xray-JSON template only when falling back to JSON.
func (c Capability) TemplateTypeFor(opt Options) model.TemplateType {
	if c.Target == TargetXrayBase64 && opt.JSONFallback {
		return model.TemplateXrayJSON
	}
	return c.TemplateType
}

// Supports reports whether h can be expressed; reason explains a refusal.
func (c Capability) Supports(h model.FormattedHost) (reason string, ok bool) {
	switch {
	case !c.Protocols[h.Protocol]:
		return fmt.Sprintf("protocol %s is not supported by %s", h.Protocol, c.Target), false
	case !c.Networks[h.Network]:
		return fmt.Sprintf("network %s is not supported by %s", h.Network, c.Target), false
	case !c.Security[h.Security]:
		return fmt.Sprintf("security %s is not supported by %s", h.Security, c.Target), false
	}
	return "", true
}

// eligible splits hosts into the ones c supports and skip records for the rest.
func (c Capability) eligible(hosts []model.FormattedHost) ([]model.FormattedHost, []model.SkippedHost) {
	out := make([]model.FormattedHost, 0, len(hosts))
	var skipped []model.SkippedHost
	for _, h := range hosts {
		if reason, ok := c.Supports(h); !ok {
			skipped = append(skipped, skip(h, "%s", reason))
			continue
		}
		out = append(out, h)
	}
	return out, skipped
}
