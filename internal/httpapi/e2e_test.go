package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/rules"
	"github.com/John-Robertt/subresponse-go/internal/store"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

func newE2E(t *testing.T) (http.Handler, *model.UserSecrets) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "sub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.SaveRulesConfig(ctx, rules.DefaultConfig()))
	require.NoError(t, st.SaveTemplate(ctx, model.TemplateSource{
		Type: model.TemplateClash,
		Name: model.DefaultTemplateName,
		Content: `mixed-port: 7890
proxies: []
proxy-groups:
  - name: Proxy
    type: select
    proxies: []
rules:
  - MATCH,Proxy
`,
	}))

	user := &model.UserSecrets{Username: "alice", SquadID: 1, TrojanPassword: "tp", SSPassword: "sp", TrafficLimit: 1 << 30}
	require.NoError(t, st.SaveUser(ctx, user))

	for i, h := range []model.Host{
		{SquadID: 1, Position: 1, Remark: "{{USERNAME}} trojan", Protocol: model.ProtocolTrojan, Address: "t.example.com", Port: 443, Security: model.SecurityTLS, SNI: "t.example.com"},
		{SquadID: 1, Position: 2, Remark: "vless ws", Protocol: model.ProtocolVLESS, Network: model.NetworkWS, Address: "v.example.com", Port: 443, Security: model.SecurityTLS, Path: "/ws?ed=2048"},
		{SquadID: 1, Position: 3, Remark: "office", Protocol: model.ProtocolShadowsocks, Address: "s.example.com", Port: 8388, Tag: "office"},
		{SquadID: 1, Position: 4, Remark: "off", Protocol: model.ProtocolTrojan, Address: "x.example.com", Port: 443, Disabled: true},
	} {
		h := h
		require.NoError(t, st.SaveHost(ctx, &h), "host %d", i)
	}

	cache := template.NewCache(st, template.CacheOptions{})
	svc := pipeline.New(st, cache, pipeline.Options{XrayJSONFallback: true})
	return NewMux(Options{Subscriptions: svc, Ready: st.Ping, ProfileTitle: "Test"}), user
}

func doGET(t *testing.T, h http.Handler, path, userAgent string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestE2E_ClashFromStoredTemplate(t *testing.T) {
	h, user := newE2E(t)

	rr := doGET(t, h, "/sub/"+user.ShortUUID, "ClashX/1.118.0")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/yaml; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Subscription-Userinfo"), "total=1073741824")

	var doc struct {
		MixedPort int `yaml:"mixed-port"`
		Proxies   []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
		} `yaml:"proxies"`
		Groups []struct {
			Name    string   `yaml:"name"`
			Proxies []string `yaml:"proxies"`
		} `yaml:"proxy-groups"`
	}
	require.NoError(t, yaml.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, 7890, doc.MixedPort)

	// vless is left out for clash; the disabled host never shows up.
	require.Len(t, doc.Proxies, 2)
	assert.Equal(t, "alice trojan", doc.Proxies[0].Name)
	assert.Equal(t, "ss", doc.Proxies[1].Type)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, []string{"alice trojan", "office"}, doc.Groups[0].Proxies)
}

func TestE2E_MihomoFallsBackToBuiltinTemplate(t *testing.T) {
	h, user := newE2E(t)

	rr := doGET(t, h, "/sub/"+user.ShortUUID, "mihomo/1.18.0")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "name: alice trojan")
	assert.Contains(t, body, "name: Auto")
	assert.NotContains(t, body, "vless ws")
}

func TestE2E_Base64AndJSONFallback(t *testing.T) {
	h, user := newE2E(t)

	rr := doGET(t, h, "/sub/"+user.ShortUUID, "curl/8.4.0")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	raw, err := base64.StdEncoding.DecodeString(rr.Body.String())
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "trojan://"))
	assert.True(t, strings.HasPrefix(lines[1], "vless://"+user.VLESSUUID+"@"))
	assert.True(t, strings.HasPrefix(lines[2], "ss://"))

	rr = doGET(t, h, "/sub/"+user.ShortUUID, "Happ/1.0")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &docs))
	assert.Len(t, docs, 3)
}

func TestE2E_BrowserAndUnknownUser(t *testing.T) {
	h, user := newE2E(t)

	rr := doGET(t, h, "/sub/"+user.ShortUUID, "Mozilla/5.0 (X11; Linux x86_64)", "Accept", "text/html,application/xhtml+xml")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))

	rr = doGET(t, h, "/sub/does-not-exist", "mihomo/1.18.0")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeError(t, rr).Code)

	rr = doGET(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestE2E_ExplicitEndpoints(t *testing.T) {
	h, user := newE2E(t)

	rr := doGET(t, h, "/sub/outline/"+user.ShortUUID+"/office", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var outline map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outline))
	assert.Equal(t, "s.example.com", outline["server"])
	assert.Equal(t, model.ShadowsocksCipher, outline["method"])

	rr = doGET(t, h, "/sub/outline/"+user.ShortUUID+"/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doGET(t, h, "/sub/"+user.ShortUUID+"/raw", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var hosts []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hosts))
	assert.Len(t, hosts, 3)

	rr = doGET(t, h, "/sub/"+user.ShortUUID+"/singbox", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"type": "vless"`)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="alice.json"`)
}
