package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// clashGenerator serves Mihomo, Clash and Stash. The flavors differ only in
// their capability table.
type clashGenerator struct {
	flavor Target
}

type clashProxy struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Network  string `yaml:"network,omitempty"`
	UDP      bool   `yaml:"udp"`
	Cipher   string `yaml:"cipher,omitempty"`
	Password string `yaml:"password"`

	SNI               string            `yaml:"sni,omitempty"`
	ALPN              []string          `yaml:"alpn,omitempty"`
	SkipCertVerify    bool              `yaml:"skip-cert-verify,omitempty"`
	ClientFingerprint string            `yaml:"client-fingerprint,omitempty"`
	RealityOpts       *clashRealityOpts `yaml:"reality-opts,omitempty"`

	WSOpts   *clashWSOpts   `yaml:"ws-opts,omitempty"`
	GRPCOpts *clashGRPCOpts `yaml:"grpc-opts,omitempty"`
}

type clashRealityOpts struct {
	PublicKey string `yaml:"public-key"`
	ShortID   string `yaml:"short-id,omitempty"`
}

type clashWSOpts struct {
	Path                string            `yaml:"path"`
	Headers             map[string]string `yaml:"headers,omitempty"`
	MaxEarlyData        int               `yaml:"max-early-data,omitempty"`
	EarlyDataHeaderName string            `yaml:"early-data-header-name,omitempty"`

	V2rayHTTPUpgrade         bool `yaml:"v2ray-http-upgrade,omitempty"`
	V2rayHTTPUpgradeFastOpen bool `yaml:"v2ray-http-upgrade-fast-open,omitempty"`
}

type clashGRPCOpts struct {
	ServiceName string `yaml:"grpc-service-name"`
}

func (g clashGenerator) Generate(hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error) {
	capa := capabilities[g.flavor]
	eligible, skipped := capa.eligible(hosts)

	root := doc.YAML()
	if root == nil {
		return Output{}, renderError("TEMPLATE_PARSE_ERROR", "模板缺少顶层 mapping", nil)
	}
	taken := clashTemplateNames(root)

	proxies := make([]*yaml.Node, 0, len(eligible))
	names := make([]string, 0, len(eligible))
	for _, h := range eligible {
		if taken[h.Remark] {
			skipped = append(skipped, skip(h, "remark %q clashes with a template name", h.Remark))
			continue
		}
		p, err := g.buildProxy(h)
		if err != nil {
			skipped = append(skipped, skip(h, "%v", err))
			continue
		}
		var n yaml.Node
		if err := n.Encode(p); err != nil {
			skipped = append(skipped, skip(h, "encode proxy: %v", err))
			continue
		}
		proxies = append(proxies, &n)
		names = append(names, p.Name)
	}

	proxyList := ensureSeq(root, "proxies")
	proxyList.Content = append(proxyList.Content, proxies...)

	if groups := mappingValue(root, "proxy-groups"); groups != nil && groups.Kind == yaml.SequenceNode {
		for _, grp := range groups.Content {
			if grp.Kind != yaml.MappingNode {
				continue
			}
			if err := applyGroupPolicy(grp, names); err != nil {
				return Output{}, renderError("TEMPLATE_PARSE_ERROR", "proxy-group 策略标记不合法", err)
			}
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc.YAMLDocument()); err != nil {
		return Output{}, renderError("RENDER_FAILED", "YAML 序列化失败", err)
	}
	if err := enc.Close(); err != nil {
		return Output{}, renderError("RENDER_FAILED", "YAML 序列化失败", err)
	}
	return Output{Body: buf.String(), Skipped: skipped}, nil
}

// clashTemplateNames collects proxy and group names the template already uses,
// plus the built-in policies.
func clashTemplateNames(root *yaml.Node) map[string]bool {
	taken := set("DIRECT", "REJECT", "REJECT-DROP", "PASS", "COMPATIBLE")
	for _, key := range []string{"proxies", "proxy-groups"} {
		seq := mappingValue(root, key)
		if seq == nil || seq.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range seq.Content {
			if n := mappingValue(item, "name"); n != nil && n.Kind == yaml.ScalarNode {
				taken[n.Value] = true
			}
		}
	}
	return taken
}

func (g clashGenerator) buildProxy(h model.FormattedHost) (clashProxy, error) {
	p := clashProxy{
		Name:     h.Remark,
		Server:   h.Address,
		Port:     h.Port,
		UDP:      true,
		Password: h.Password,
	}
	switch h.Protocol {
	case model.ProtocolTrojan:
		p.Type = "trojan"
	case model.ProtocolShadowsocks:
		p.Type = "ss"
		p.Cipher = h.Cipher
		if !isTCPLike(h.Network) || h.TLSEnabled() {
			return clashProxy{}, fmt.Errorf("shadowsocks only supports plain tcp here")
		}
		return p, nil
	default:
		return clashProxy{}, fmt.Errorf("unsupported protocol %s", h.Protocol)
	}

	// Only trojan gets this far; the family has no TLS shadowsocks or vless.
	if h.TLSEnabled() {
		p.SNI = serverName(h)
		p.ALPN = h.ALPN
		p.SkipCertVerify = h.AllowInsecure
		p.ClientFingerprint = orDefault(h.Fingerprint, defaultFingerprint)
		if h.Security == model.SecurityReality {
			p.RealityOpts = &clashRealityOpts{PublicKey: h.PublicKey, ShortID: h.ShortID}
		}
	}

	switch h.Network {
	case model.NetworkTCP, model.NetworkRaw:
		// plain
	case model.NetworkWS, model.NetworkHTTPUpgrade:
		ed, err := parseEarlyData(h.Path)
		if err != nil {
			return clashProxy{}, err
		}
		p.Network = "ws"
		ws := &clashWSOpts{Path: pathOr(ed.Path, "/")}
		if h.HostHeader != "" {
			ws.Headers = map[string]string{"Host": h.HostHeader}
		}
		if ed.Set {
			ws.MaxEarlyData = ed.Max
			ws.EarlyDataHeaderName = earlyDataHeaderName
		}
		if h.Network == model.NetworkHTTPUpgrade {
			ws.V2rayHTTPUpgrade = true
			ws.V2rayHTTPUpgradeFastOpen = ed.Set
			ws.MaxEarlyData = 0
			ws.EarlyDataHeaderName = ""
		}
		p.WSOpts = ws
	case model.NetworkGRPC:
		p.Network = "grpc"
		p.GRPCOpts = &clashGRPCOpts{ServiceName: h.ServiceName}
	default:
		return clashProxy{}, fmt.Errorf("unsupported network %s", h.Network)
	}
	return p, nil
}

// mappingValue returns the value node for key in mapping m, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func deleteKey(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return v
		}
	}
	return nil
}

// ensureSeq returns the block sequence stored under key, creating or
// materialising it when the key is missing, null or an alias.
func ensureSeq(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		v := m.Content[i+1]
		if v.Kind == yaml.AliasNode && v.Alias != nil && v.Alias.Kind == yaml.SequenceNode {
			items := append([]*yaml.Node(nil), v.Alias.Content...)
			v = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
			m.Content[i+1] = v
		}
		if v.Kind != yaml.SequenceNode {
			v = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			m.Content[i+1] = v
		}
		v.Style &^= yaml.FlowStyle
		return v
	}
	v := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		v,
	)
	return v
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
