package template

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

//go:embed defaults/*
var defaultsFS embed.FS

var defaultFiles = map[model.TemplateType]string{
	model.TemplateMihomo:   "defaults/mihomo.yaml",
	model.TemplateClash:    "defaults/clash.yaml",
	model.TemplateStash:    "defaults/stash.yaml",
	model.TemplateSingBox:  "defaults/singbox.json",
	model.TemplateXrayJSON: "defaults/xray_json.json",
}

// Document is a parsed template skeleton. Exactly one of the YAML root or the
// JSON object is set, depending on Type.
//
// Documents held by the Cache are never handed out; callers always receive a
// Clone and may mutate it freely.
type Document struct {
	Type    model.TemplateType
	Name    string
	Builtin bool

	root *yaml.Node
	obj  map[string]any
}

// YAML returns the top-level mapping node of a YAML template.
func (d *Document) YAML() *yaml.Node {
	if d == nil || d.root == nil || len(d.root.Content) == 0 {
		return nil
	}
	return d.root.Content[0]
}

// YAMLDocument returns the document node (for encoding with comments intact).
func (d *Document) YAMLDocument() *yaml.Node {
	if d == nil {
		return nil
	}
	return d.root
}

// JSON returns the top-level object of a JSON template.
func (d *Document) JSON() map[string]any {
	if d == nil {
		return nil
	}
	return d.obj
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Type: d.Type, Name: d.Name, Builtin: d.Builtin}
	if d.root != nil {
		out.root = deepcopy.Copy(d.root).(*yaml.Node)
	}
	if d.obj != nil {
		out.obj = deepcopy.Copy(d.obj).(map[string]any)
	}
	return out
}

// Parse parses template content according to its type.
func Parse(typ model.TemplateType, name string, content string) (*Document, error) {
	if !typ.Valid() {
		return nil, templateError("INVALID_ARGUMENT", fmt.Sprintf("未知模板类型：%q", typ), typ, name, nil)
	}
	doc := &Document{Type: typ, Name: name}

	if typ.IsYAML() {
		root, err := parseYAML(content)
		if err != nil {
			te := templateError("TEMPLATE_PARSE_ERROR", "模板 YAML 解析失败", typ, name, err)
			te.AppError.Snippet = truncateSnippet(content, 200)
			return nil, te
		}
		doc.root = root
		return doc, nil
	}

	obj, err := parseJSON(content)
	if err != nil {
		te := templateError("TEMPLATE_PARSE_ERROR", "模板 JSON 解析失败", typ, name, err)
		te.AppError.Snippet = truncateSnippet(content, 200)
		return nil, te
	}
	doc.obj = obj
	return doc, nil
}

// ParseJSONObject parses a standalone JSON object, e.g. a per-host Xray
// template override.
func ParseJSONObject(content string) (map[string]any, error) {
	return parseJSON(content)
}

// Builtin returns the embedded default skeleton for typ.
func Builtin(typ model.TemplateType) (*Document, error) {
	file, ok := defaultFiles[typ]
	if !ok {
		return nil, templateError("INVALID_ARGUMENT", fmt.Sprintf("未知模板类型：%q", typ), typ, model.DefaultTemplateName, nil)
	}
	b, err := defaultsFS.ReadFile(file)
	if err != nil {
		return nil, templateError("TEMPLATE_LOAD_ERROR", "内置模板读取失败", typ, model.DefaultTemplateName, err)
	}
	doc, err := Parse(typ, model.DefaultTemplateName, string(b))
	if err != nil {
		return nil, err
	}
	doc.Builtin = true
	return doc, nil
}

func parseYAML(content string) (*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}

	// Reject multi-document YAML to keep behavior deterministic.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}
	if err := checkAliasCycles(root.Content[0], map[*yaml.Node]bool{}); err != nil {
		return nil, err
	}
	return &root, nil
}

// checkAliasCycles rejects aliases that point at one of their own ancestors.
// Such documents cannot be cloned or merged safely.
func checkAliasCycles(n *yaml.Node, ancestors map[*yaml.Node]bool) error {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		if ancestors[n.Alias] {
			return fmt.Errorf("recursive alias *%s", n.Value)
		}
		return nil
	}
	ancestors[n] = true
	defer delete(ancestors, n)
	for _, c := range n.Content {
		if err := checkAliasCycles(c, ancestors); err != nil {
			return err
		}
	}
	return nil
}

func parseJSON(content string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("top level must be an object")
	}
	return obj, nil
}

func truncateSnippet(s string, max int) string {
	b := []byte(s)
	b = bytes.ReplaceAll(b, []byte("\r"), nil)
	b = bytes.ReplaceAll(b, []byte("\n"), nil)
	if max <= 0 {
		return ""
	}
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max])
}
