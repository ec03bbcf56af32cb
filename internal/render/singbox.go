package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

type singBoxGenerator struct{}

// singBoxProxyTypes are outbound types that carry traffic to a server, as
// opposed to meta (selector/urltest) or local (direct/block/dns) outbounds.
var singBoxProxyTypes = set(
	"vless", "vmess", "trojan", "shadowsocks", "shadowtls", "hysteria", "hysteria2",
	"tuic", "wireguard", "socks", "http", "ssh", "anytls",
)

func (singBoxGenerator) Generate(hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error) {
	eligible, skipped := capabilities[TargetSingBox].eligible(hosts)

	root := doc.JSON()
	existing, _ := root["outbounds"].([]any)
	outbounds := make([]any, 0, len(existing)+len(eligible))
	outbounds = append(outbounds, existing...)

	taken := map[string]bool{}
	for _, ob := range existing {
		if m, ok := ob.(map[string]any); ok {
			if tag, ok := m["tag"].(string); ok {
				taken[tag] = true
			}
		}
	}

	for _, h := range eligible {
		if taken[h.Remark] {
			skipped = append(skipped, skip(h, "remark %q clashes with a template outbound tag", h.Remark))
			continue
		}
		ob, err := singBoxOutbound(h)
		if err != nil {
			skipped = append(skipped, skip(h, "%v", err))
			continue
		}
		outbounds = append(outbounds, ob)
	}

	backfillSingBoxGroups(outbounds)
	root["outbounds"] = outbounds

	body, err := marshalJSON(root)
	if err != nil {
		return Output{}, renderError("RENDER_FAILED", "JSON 序列化失败", err)
	}
	return Output{Body: body, Skipped: skipped}, nil
}

func singBoxOutbound(h model.FormattedHost) (map[string]any, error) {
	ob := map[string]any{
		"tag":         h.Remark,
		"server":      h.Address,
		"server_port": h.Port,
	}
	switch h.Protocol {
	case model.ProtocolVLESS:
		ob["type"] = "vless"
		ob["uuid"] = h.Password
		if h.Flow != "" && isTCPLike(h.Network) {
			ob["flow"] = h.Flow
		}
		ob["packet_encoding"] = "xudp"
	case model.ProtocolTrojan:
		ob["type"] = "trojan"
		ob["password"] = h.Password
	case model.ProtocolShadowsocks:
		ob["type"] = "shadowsocks"
		ob["method"] = h.Cipher
		ob["password"] = h.Password
		if !isTCPLike(h.Network) {
			return nil, fmt.Errorf("shadowsocks only supports plain tcp here")
		}
		return ob, nil
	default:
		return nil, fmt.Errorf("unsupported protocol %s", h.Protocol)
	}

	if tls := singBoxTLS(h); tls != nil {
		ob["tls"] = tls
	}

	transport, err := singBoxTransport(h)
	if err != nil {
		return nil, err
	}
	if transport != nil {
		ob["transport"] = transport
	}
	return ob, nil
}

func singBoxTLS(h model.FormattedHost) map[string]any {
	if !h.TLSEnabled() {
		return nil
	}
	tls := map[string]any{
		"enabled":     true,
		"server_name": serverName(h),
	}
	if len(h.ALPN) > 0 {
		tls["alpn"] = h.ALPN
	}
	if h.AllowInsecure {
		tls["insecure"] = true
	}

	fp := h.Fingerprint
	if h.Security == model.SecurityReality {
		fp = orDefault(fp, defaultFingerprint)
		tls["reality"] = map[string]any{
			"enabled":    true,
			"public_key": h.PublicKey,
			"short_id":   h.ShortID,
		}
	}
	if fp != "" {
		tls["utls"] = map[string]any{"enabled": true, "fingerprint": fp}
	}
	return tls
}

func singBoxTransport(h model.FormattedHost) (map[string]any, error) {
	switch h.Network {
	case model.NetworkTCP, model.NetworkRaw:
		if h.HeaderType != "http" {
			return nil, nil
		}
		t := map[string]any{"type": "http", "path": pathOr(h.Path, "/")}
		if h.HostHeader != "" {
			t["host"] = []string{h.HostHeader}
		}
		return t, nil
	case model.NetworkWS:
		ed, err := parseEarlyData(h.Path)
		if err != nil {
			return nil, err
		}
		t := map[string]any{"type": "ws", "path": pathOr(ed.Path, "/")}
		if h.HostHeader != "" {
			t["headers"] = map[string]any{"Host": h.HostHeader}
		}
		if ed.Set {
			t["max_early_data"] = ed.Max
			t["early_data_header_name"] = earlyDataHeaderName
		}
		return t, nil
	case model.NetworkHTTPUpgrade:
		t := map[string]any{"type": "httpupgrade", "path": pathOr(h.Path, "/")}
		if h.HostHeader != "" {
			t["host"] = h.HostHeader
		}
		return t, nil
	case model.NetworkGRPC:
		return map[string]any{"type": "grpc", "service_name": h.ServiceName}, nil
	default:
		return nil, fmt.Errorf("unsupported network %s", h.Network)
	}
}

func outboundTypeTag(v any) (typ, tag string) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", ""
	}
	typ, _ = m["type"].(string)
	tag, _ = m["tag"].(string)
	return typ, tag
}

// backfillSingBoxGroups fills urltest outbounds with every proxy tag and
// selector outbounds with every proxy and urltest tag. It runs after all
// hosts are appended; selectors are filled last.
func backfillSingBoxGroups(outbounds []any) {
	var proxyTags, urltestTags []string
	for _, ob := range outbounds {
		typ, tag := outboundTypeTag(ob)
		switch {
		case tag == "":
		case singBoxProxyTypes[typ]:
			proxyTags = append(proxyTags, tag)
		case typ == "urltest":
			urltestTags = append(urltestTags, tag)
		}
	}

	fill := func(wantType string, tags []string) {
		for _, ob := range outbounds {
			typ, _ := outboundTypeTag(ob)
			if typ != wantType {
				continue
			}
			m := ob.(map[string]any)
			members := lo.Map(asSlice(m["outbounds"]), func(v any, _ int) string {
				s, _ := v.(string)
				return s
			})
			members = lo.Uniq(append(members, tags...))
			m["outbounds"] = lo.Filter(members, func(s string, _ int) bool { return s != "" })
		}
	}
	fill("urltest", proxyTags)
	fill("selector", append(append([]string(nil), proxyTags...), urltestTags...))
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// marshalJSON renders v with two-space indentation and without HTML escaping.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
