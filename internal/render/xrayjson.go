package render

import (
	"fmt"

	"github.com/mohae/deepcopy"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// xrayJSONGenerator emits one complete client config per host.
type xrayJSONGenerator struct{}

const xrayProxyTag = "proxy"

func (xrayJSONGenerator) Generate(hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error) {
	eligible, skipped := capabilities[TargetXrayJSON].eligible(hosts)

	base := doc.JSON()
	docs := make([]any, 0, len(eligible))
	for _, h := range eligible {
		d, err := xrayDocument(h, base)
		if err != nil {
			skipped = append(skipped, skip(h, "%v", err))
			continue
		}
		docs = append(docs, d)
	}

	body, err := marshalJSON(docs)
	if err != nil {
		return Output{}, renderError("RENDER_FAILED", "JSON 序列化失败", err)
	}
	return Output{Body: body, ContentType: "application/json", Skipped: skipped}, nil
}

// xrayDocument builds the config for one host from a private copy of base,
// or of the host's own template when it carries one.
func xrayDocument(h model.FormattedHost, base map[string]any) (map[string]any, error) {
	var d map[string]any
	if h.XrayTemplate != "" {
		obj, err := template.ParseJSONObject(h.XrayTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid host xray template: %w", err)
		}
		d = obj
	} else {
		d = deepcopy.Copy(base).(map[string]any)
	}

	ob, err := xrayOutbound(h)
	if err != nil {
		return nil, err
	}

	existing := asSlice(d["outbounds"])
	outbounds := make([]any, 0, len(existing)+1)
	outbounds = append(outbounds, ob)
	outbounds = append(outbounds, existing...)

	d["remarks"] = h.Remark
	d["outbounds"] = outbounds
	return d, nil
}

func xrayOutbound(h model.FormattedHost) (map[string]any, error) {
	ob := map[string]any{"tag": xrayProxyTag}
	switch h.Protocol {
	case model.ProtocolVLESS:
		user := map[string]any{"id": h.Password, "encryption": "none"}
		if h.Flow != "" {
			user["flow"] = h.Flow
		}
		ob["protocol"] = "vless"
		ob["settings"] = map[string]any{
			"vnext": []any{map[string]any{"address": h.Address, "port": h.Port, "users": []any{user}}},
		}
	case model.ProtocolTrojan:
		ob["protocol"] = "trojan"
		ob["settings"] = map[string]any{
			"servers": []any{map[string]any{"address": h.Address, "port": h.Port, "password": h.Password}},
		}
	case model.ProtocolShadowsocks:
		ob["protocol"] = "shadowsocks"
		ob["settings"] = map[string]any{
			"servers": []any{map[string]any{"address": h.Address, "port": h.Port, "method": h.Cipher, "password": h.Password}},
		}
	default:
		return nil, fmt.Errorf("unsupported protocol %s", h.Protocol)
	}

	stream, err := xrayStreamSettings(h)
	if err != nil {
		return nil, err
	}
	ob["streamSettings"] = stream
	if len(h.Mux) > 0 {
		ob["mux"] = h.Mux
	}
	return ob, nil
}

func xrayStreamSettings(h model.FormattedHost) (map[string]any, error) {
	s := map[string]any{"network": string(h.Network)}

	switch h.Network {
	case model.NetworkWS:
		ed, err := parseEarlyData(h.Path)
		if err != nil {
			return nil, err
		}
		ws := map[string]any{"path": pathOr(ed.Path, "/")}
		if h.HostHeader != "" {
			ws["host"] = h.HostHeader
			ws["headers"] = map[string]any{"Host": h.HostHeader}
		}
		if ed.Set {
			ws["maxEarlyData"] = ed.Max
			ws["earlyDataHeaderName"] = earlyDataHeaderName
		}
		s["wsSettings"] = ws
	case model.NetworkHTTPUpgrade:
		hu := map[string]any{"path": pathOr(h.Path, "/")}
		if h.HostHeader != "" {
			hu["host"] = h.HostHeader
		}
		s["httpupgradeSettings"] = hu
	case model.NetworkTCP, model.NetworkRaw:
		key := "tcpSettings"
		if h.Network == model.NetworkRaw {
			key = "rawSettings"
		}
		if h.HeaderType == "http" {
			req := map[string]any{"path": []any{pathOr(h.Path, "/")}}
			if h.HostHeader != "" {
				req["headers"] = map[string]any{"Host": []any{h.HostHeader}}
			}
			s[key] = map[string]any{"header": map[string]any{"type": "http", "request": req}}
		}
	case model.NetworkXHTTP:
		xh := map[string]any{"path": pathOr(h.Path, "/"), "mode": orDefault(h.XHTTPMode, defaultXHTTPMode)}
		if h.HostHeader != "" {
			xh["host"] = h.HostHeader
		}
		if len(h.XHTTPExtra) > 0 {
			xh["extra"] = h.XHTTPExtra
		}
		s["xhttpSettings"] = xh
	case model.NetworkGRPC:
		g := map[string]any{"serviceName": h.ServiceName, "multiMode": h.MultiMode}
		if h.Authority != "" {
			g["authority"] = h.Authority
		}
		s["grpcSettings"] = g
	default:
		return nil, fmt.Errorf("unsupported network %s", h.Network)
	}

	switch h.Security {
	case model.SecurityTLS:
		tls := map[string]any{"serverName": serverName(h), "allowInsecure": h.AllowInsecure}
		if len(h.ALPN) > 0 {
			tls["alpn"] = h.ALPN
		}
		if h.Fingerprint != "" {
			tls["fingerprint"] = h.Fingerprint
		}
		s["security"] = "tls"
		s["tlsSettings"] = tls
	case model.SecurityReality:
		s["security"] = "reality"
		s["realitySettings"] = map[string]any{
			"serverName":  serverName(h),
			"publicKey":   h.PublicKey,
			"shortId":     h.ShortID,
			"spiderX":     h.SpiderX,
			"fingerprint": orDefault(h.Fingerprint, defaultFingerprint),
		}
	default:
		s["security"] = "none"
	}

	if len(h.Sockopt) > 0 {
		s["sockopt"] = h.Sockopt
	}
	return s, nil
}
