package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

func fh(id uint, remark string, p model.Protocol, n model.Network) model.FormattedHost {
	h := model.FormattedHost{
		HostID:     id,
		Remark:     remark,
		Protocol:   p,
		Network:    n,
		Address:    "srv.example.com",
		Port:       443,
		Security:   model.SecurityNone,
		ALPN:       []string{},
		XHTTPExtra: map[string]any{},
		Mux:        map[string]any{},
		Sockopt:    map[string]any{},
	}
	switch p {
	case model.ProtocolVLESS:
		h.Password = "b831381d-6324-4d53-ad4f-8cda48b30811"
	case model.ProtocolTrojan:
		h.Password = "123456"
	case model.ProtocolShadowsocks:
		h.Password = "ss-pass"
		h.Cipher = model.ShadowsocksCipher
	}
	return h
}

func withTLS(h model.FormattedHost, sni string) model.FormattedHost {
	h.Security = model.SecurityTLS
	h.SNI = sni
	return h
}

func mustParse(t *testing.T, typ model.TemplateType, content string) *template.Document {
	t.Helper()
	doc, err := template.Parse(typ, "test", content)
	require.NoError(t, err)
	return doc
}

func mustBuiltin(t *testing.T, typ model.TemplateType) *template.Document {
	t.Helper()
	doc, err := template.Builtin(typ)
	require.NoError(t, err)
	return doc
}

func TestTargetFor(t *testing.T) {
	tgt, ok := TargetFor(model.ResponseSingBox)
	require.True(t, ok)
	assert.Equal(t, TargetSingBox, tgt)

	_, ok = TargetFor(model.ResponseBlock)
	assert.False(t, ok)
}

func TestGenerate_UnknownTargetAndTemplateMismatch(t *testing.T) {
	_, err := Generate("quanx", nil, nil, Options{})
	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "UNSUPPORTED_TARGET", re.AppError.Code)

	_, err = Generate(TargetMihomo, nil, mustBuiltin(t, model.TemplateSingBox), Options{})
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "TEMPLATE_TYPE_MISMATCH", re.AppError.Code)

	_, err = Generate(TargetXrayBase64, nil, nil, Options{JSONFallback: true})
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "TEMPLATE_TYPE_MISMATCH", re.AppError.Code)
}

func TestCapability_EmitsPerHost(t *testing.T) {
	c, ok := Capabilities(TargetXrayJSON)
	require.True(t, ok)
	assert.True(t, c.EmitsPerHost)

	c, _ = Capabilities(TargetSingBox)
	assert.False(t, c.EmitsPerHost)
}

func TestParseEarlyData(t *testing.T) {
	cases := []struct {
		in      string
		want    earlyData
		wantErr bool
	}{
		{in: "/ws", want: earlyData{Path: "/ws"}},
		{in: "/sub?ed=2048", want: earlyData{Path: "/sub", Max: 2048, Set: true}},
		{in: "/sub?a=1&ed=2048", want: earlyData{Path: "/sub?a=1", Max: 2048, Set: true}},
		{in: "/sub?a=1", want: earlyData{Path: "/sub?a=1"}},
		{in: "?ed=0", want: earlyData{Path: "/", Max: 0, Set: true}},
		{in: "/sub?ed=abc", wantErr: true},
		{in: "/sub?ed=-1", wantErr: true},
		{in: "/sub?ed=99999999", wantErr: true},
		{in: "/sub?%zz", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseEarlyData(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "in=%q", tc.in)
			continue
		}
		require.NoError(t, err, "in=%q", tc.in)
		assert.Equal(t, tc.want, got, "in=%q", tc.in)
	}
}
