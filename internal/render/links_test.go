package render

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

func TestShareLink_VLESSReality(t *testing.T) {
	h := fh(1, "DE 1", model.ProtocolVLESS, model.NetworkTCP)
	h.Security = model.SecurityReality
	h.SNI = "www.example.com"
	h.PublicKey = "pbk"
	h.ShortID = "ab"
	h.Flow = "xtls-rprx-vision"

	link, err := ShareLink(h)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "vless://b831381d-6324-4d53-ad4f-8cda48b30811@srv.example.com:443?"), link)
	assert.True(t, strings.HasSuffix(link, "#DE%201"), link)

	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "tcp", q.Get("type"))
	assert.Equal(t, "reality", q.Get("security"))
	assert.Equal(t, "chrome", q.Get("fp"))
	assert.Equal(t, "pbk", q.Get("pbk"))
	assert.Equal(t, "ab", q.Get("sid"))
	assert.Equal(t, "xtls-rprx-vision", q.Get("flow"))
	assert.Equal(t, "none", q.Get("encryption"))
	assert.Equal(t, "www.example.com", q.Get("sni"))
}

func TestShareLink_TrojanWS(t *testing.T) {
	h := withTLS(fh(1, "t", model.ProtocolTrojan, model.NetworkWS), "cdn.example.com")
	h.Path = "/ws?ed=2048"
	h.HostHeader = "cdn.example.com"
	h.ALPN = []string{"h2", "http/1.1"}

	link, err := ShareLink(h)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "trojan", u.Scheme)
	assert.Equal(t, "123456", u.User.Username())
	assert.Equal(t, "/ws?ed=2048", u.Query().Get("path"))
	assert.Equal(t, "h2,http/1.1", u.Query().Get("alpn"))
}

func TestShareLink_ShadowsocksSIP002AndIPv6(t *testing.T) {
	h := fh(1, "ss", model.ProtocolShadowsocks, model.NetworkTCP)
	h.Address = "2001:db8::1"

	link, err := ShareLink(h)
	require.NoError(t, err)
	userInfo := base64.RawURLEncoding.EncodeToString([]byte("chacha20-ietf-poly1305:ss-pass"))
	assert.Equal(t, "ss://"+userInfo+"@[2001:db8::1]:443#ss", link)
}

func TestBase64_BodyAndSkips(t *testing.T) {
	bad := fh(3, "bad", model.ProtocolTrojan, model.NetworkWS)
	bad.Path = "/x?ed=nope"
	hosts := []model.FormattedHost{
		fh(1, "a", model.ProtocolTrojan, model.NetworkTCP),
		fh(2, "b", model.ProtocolShadowsocks, model.NetworkTCP),
		bad,
	}
	out, err := Generate(TargetXrayBase64, hosts, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", out.ContentType)
	require.Len(t, out.Skipped, 1)

	raw, err := base64.StdEncoding.DecodeString(out.Body)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "trojan://"))
	assert.True(t, strings.HasPrefix(lines[1], "ss://"))
}

func TestBase64_JSONFallback(t *testing.T) {
	hosts := []model.FormattedHost{fh(1, "a", model.ProtocolVLESS, model.NetworkTCP)}
	out, err := Generate(TargetXrayBase64, hosts, mustBuiltin(t, model.TemplateXrayJSON), Options{JSONFallback: true})
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)
	docs := decodeXray(t, out.Body)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0]["remarks"])
}

func TestRawHost_And_Outline(t *testing.T) {
	ss1 := fh(1, "ss1", model.ProtocolShadowsocks, model.NetworkTCP)
	ss1.Tag = "one"
	ss2 := fh(2, "ss2", model.ProtocolShadowsocks, model.NetworkTCP)
	ss2.Tag = "two"
	ss2.Address = "two.example.com"
	hosts := []model.FormattedHost{fh(3, "t", model.ProtocolTrojan, model.NetworkTCP), ss1, ss2}

	out, err := Generate(TargetRaw, hosts, nil, Options{})
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Body), &list))
	require.Len(t, list, 3)
	assert.Equal(t, model.ShadowsocksCipher, list[1]["cipher"])
	assert.Nil(t, list[0]["cipher"])

	out, err = Generate(TargetOutline, hosts, nil, Options{OutlineTag: "two"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Body), &cfg))
	assert.Equal(t, map[string]any{
		"server": "two.example.com", "server_port": float64(443), "password": "ss-pass", "method": model.ShadowsocksCipher,
	}, cfg)

	out, err = Generate(TargetOutline, hosts, nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, out.Body, "srv.example.com")

	_, err = Generate(TargetOutline, hosts, nil, Options{OutlineTag: "missing"})
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "OUTLINE_HOST_NOT_FOUND", re.AppError.Code)
}
