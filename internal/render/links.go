package render

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// base64Generator renders classic share links, one per line, with the whole
// body base64 encoded.
type base64Generator struct{}

func (base64Generator) Generate(hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error) {
	if opt.JSONFallback {
		return xrayJSONGenerator{}.Generate(hosts, doc, opt)
	}

	eligible, skipped := capabilities[TargetXrayBase64].eligible(hosts)
	lines := make([]string, 0, len(eligible))
	for _, h := range eligible {
		link, err := ShareLink(h)
		if err != nil {
			skipped = append(skipped, skip(h, "%v", err))
			continue
		}
		lines = append(lines, link)
	}

	body := base64.StdEncoding.EncodeToString([]byte(strings.Join(lines, "\n")))
	return Output{Body: body, Skipped: skipped}, nil
}

// ShareLink renders h as a vless://, trojan:// or SIP002 ss:// URI.
func ShareLink(h model.FormattedHost) (string, error) {
	switch h.Protocol {
	case model.ProtocolVLESS:
		q, err := linkQuery(h)
		if err != nil {
			return "", err
		}
		q.Set("encryption", "none")
		if h.Flow != "" {
			q.Set("flow", h.Flow)
		}
		return buildLink("vless", url.PathEscape(h.Password), h, q), nil
	case model.ProtocolTrojan:
		q, err := linkQuery(h)
		if err != nil {
			return "", err
		}
		return buildLink("trojan", url.PathEscape(h.Password), h, q), nil
	case model.ProtocolShadowsocks:
		userInfo := strings.ToLower(h.Cipher) + ":" + h.Password
		return buildLink("ss", base64.RawURLEncoding.EncodeToString([]byte(userInfo)), h, nil), nil
	default:
		return "", fmt.Errorf("unsupported protocol %s", h.Protocol)
	}
}

func linkQuery(h model.FormattedHost) (url.Values, error) {
	q := url.Values{}
	q.Set("type", string(h.Network))
	q.Set("security", string(h.Security))

	switch h.Network {
	case model.NetworkWS, model.NetworkHTTPUpgrade, model.NetworkXHTTP:
		if _, err := parseEarlyData(h.Path); err != nil {
			return nil, err
		}
		q.Set("path", pathOr(h.Path, "/"))
		if h.HostHeader != "" {
			q.Set("host", h.HostHeader)
		}
		if h.Network == model.NetworkXHTTP {
			q.Set("mode", orDefault(h.XHTTPMode, defaultXHTTPMode))
		}
	case model.NetworkGRPC:
		q.Set("serviceName", h.ServiceName)
		if h.Authority != "" {
			q.Set("authority", h.Authority)
		}
		if h.MultiMode {
			q.Set("mode", "multi")
		}
	case model.NetworkTCP, model.NetworkRaw:
		if h.HeaderType == "http" {
			q.Set("headerType", "http")
			q.Set("path", pathOr(h.Path, "/"))
			if h.HostHeader != "" {
				q.Set("host", h.HostHeader)
			}
		}
	}

	if h.TLSEnabled() {
		q.Set("sni", serverName(h))
		if h.Security == model.SecurityReality {
			q.Set("fp", orDefault(h.Fingerprint, defaultFingerprint))
			q.Set("pbk", h.PublicKey)
			if h.ShortID != "" {
				q.Set("sid", h.ShortID)
			}
			if h.SpiderX != "" {
				q.Set("spx", h.SpiderX)
			}
		} else if h.Fingerprint != "" {
			q.Set("fp", h.Fingerprint)
		}
		if len(h.ALPN) > 0 {
			q.Set("alpn", strings.Join(h.ALPN, ","))
		}
		if h.AllowInsecure {
			q.Set("allowInsecure", "1")
		}
	}
	return q, nil
}

func buildLink(scheme, userInfo string, h model.FormattedHost, q url.Values) string {
	host := h.Address
	// IPv6 host must be wrapped in [] in URI.
	if strings.Contains(host, ":") && !(strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]")) {
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(userInfo)
	b.WriteByte('@')
	b.WriteString(host)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(h.Port))
	if len(q) > 0 {
		b.WriteString("?")
		b.WriteString(pctEncodeQuery(q))
	}
	if h.Remark != "" {
		b.WriteByte('#')
		b.WriteString(pctEncode(h.Remark))
	}
	return b.String()
}

func pctEncodeQuery(q url.Values) string {
	// url.Values.Encode sorts keys, which keeps links stable.
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}

func pctEncode(s string) string {
	// RFC 3986 percent-encoding for query/fragment. Go's QueryEscape uses '+' for
	// spaces, which we rewrite to %20 for stability and to avoid ambiguity.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
