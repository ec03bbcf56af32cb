package render

import (
	"fmt"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// rawHostGenerator returns the formatted hosts nearly verbatim for clients
// that assemble their own config.
type rawHostGenerator struct{}

func (rawHostGenerator) Generate(hosts []model.FormattedHost, _ *template.Document, _ Options) (Output, error) {
	eligible, skipped := capabilities[TargetRaw].eligible(hosts)
	body, err := marshalJSON(eligible)
	if err != nil {
		return Output{}, renderError("RENDER_FAILED", "JSON 序列化失败", err)
	}
	return Output{Body: body, Skipped: skipped}, nil
}

type outlineConfig struct {
	Server     string `json:"server"`
	ServerPort int    `json:"server_port"`
	Password   string `json:"password"`
	Method     string `json:"method"`
}

// outlineGenerator answers Outline's dynamic access key format: exactly one
// shadowsocks server.
type outlineGenerator struct{}

func (outlineGenerator) Generate(hosts []model.FormattedHost, _ *template.Document, opt Options) (Output, error) {
	eligible, skipped := capabilities[TargetOutline].eligible(hosts)
	for _, h := range eligible {
		if opt.OutlineTag != "" && h.Tag != opt.OutlineTag {
			continue
		}
		body, err := marshalJSON(outlineConfig{
			Server:     h.Address,
			ServerPort: h.Port,
			Password:   h.Password,
			Method:     h.Cipher,
		})
		if err != nil {
			return Output{}, renderError("RENDER_FAILED", "JSON 序列化失败", err)
		}
		return Output{Body: body, Skipped: skipped}, nil
	}

	e := renderError("OUTLINE_HOST_NOT_FOUND", "没有可用于 Outline 的 shadowsocks 节点", nil)
	if opt.OutlineTag != "" {
		e.AppError.Message = fmt.Sprintf("没有 tag 为 %q 的 shadowsocks 节点", opt.OutlineTag)
	}
	return Output{}, e
}
