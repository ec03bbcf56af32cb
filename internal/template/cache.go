// Package template loads, parses and caches subscription template skeletons.
package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/subresponse-go/internal/fetch"
	"github.com/John-Robertt/subresponse-go/internal/model"
)

// Loader resolves a template source by type and name. A missing template is
// reported with an error wrapping model.ErrNotFound.
type Loader interface {
	LoadTemplate(ctx context.Context, typ model.TemplateType, name string) (*model.TemplateSource, error)
}

type CacheOptions struct {
	TTL   time.Duration // default 5m
	Fetch fetch.Options

	Now    func() time.Time
	Logger logrus.FieldLogger
}

type entry struct {
	doc     *Document
	expires time.Time
}

// Cache memoizes parsed templates per (type, name). Concurrent misses for the
// same key share one load. Get always returns a private clone.
type Cache struct {
	loader Loader
	opt    CacheOptions

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

func NewCache(loader Loader, opt CacheOptions) *Cache {
	if opt.TTL <= 0 {
		opt.TTL = 5 * time.Minute
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opt.Logger = l
	}
	return &Cache{loader: loader, opt: opt, entries: map[string]entry{}}
}

func cacheKey(typ model.TemplateType, name string) string {
	return string(typ) + "/" + name
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.DefaultTemplateName
	}
	return name
}

// Get returns a clone of the template typ/name, loading it on a miss.
//
// When the default template is not stored, the embedded skeleton for typ is
// used. A named template that does not exist is a TEMPLATE_NOT_FOUND error.
func (c *Cache) Get(ctx context.Context, typ model.TemplateType, name string) (*Document, error) {
	name = normalizeName(name)
	if !typ.Valid() {
		return nil, templateError("INVALID_ARGUMENT", fmt.Sprintf("未知模板类型：%q", typ), typ, name, nil)
	}
	key := cacheKey(typ, name)

	if doc, ok := c.lookup(key); ok {
		return doc.Clone(), nil
	}

	// The shared load outlives any single caller; each caller only stops
	// waiting when its own ctx ends.
	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if doc, ok := c.lookup(key); ok {
			return doc, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout())
		defer cancel()
		doc, err := c.load(lctx, typ, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{doc: doc, expires: c.opt.Now().Add(c.opt.TTL)}
		c.mu.Unlock()
		return doc, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document).Clone(), nil
	case <-ctx.Done():
		return nil, templateError("TEMPLATE_LOAD_ERROR", "模板加载已取消", typ, name, ctx.Err())
	}
}

// loadTimeout bounds one shared load, remote fetch included.
func (c *Cache) loadTimeout() time.Duration {
	if c.opt.Fetch.Timeout > 0 {
		return c.opt.Fetch.Timeout + 5*time.Second
	}
	return 20 * time.Second
}

func (c *Cache) lookup(key string) (*Document, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.opt.Now().Before(e.expires) {
		return nil, false
	}
	return e.doc, true
}

func (c *Cache) load(ctx context.Context, typ model.TemplateType, name string) (*Document, error) {
	log := c.opt.Logger.WithFields(logrus.Fields{"template_type": typ, "template": name})

	var src *model.TemplateSource
	var err error
	if c.loader != nil {
		src, err = c.loader.LoadTemplate(ctx, typ, name)
	} else {
		err = model.ErrNotFound
	}
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return nil, templateError("TEMPLATE_LOAD_ERROR", "模板加载失败", typ, name, err)
		}
		if name != model.DefaultTemplateName {
			return nil, templateError("TEMPLATE_NOT_FOUND", fmt.Sprintf("模板不存在：%s", name), typ, name, err)
		}
		log.Debug("no stored default template, using built-in skeleton")
		return Builtin(typ)
	}

	content := src.Content
	if strings.TrimSpace(content) == "" && src.SourceURL != "" {
		log.WithField("url", src.SourceURL).Debug("fetching remote template")
		content, err = fetch.FetchTextWithOptions(ctx, fetch.KindTemplate, src.SourceURL, c.opt.Fetch)
		if err != nil {
			return nil, templateError("TEMPLATE_LOAD_ERROR", "远程模板拉取失败", typ, name, err)
		}
	}

	doc, err := Parse(typ, name, content)
	if err != nil {
		var te *TemplateError
		if errors.As(err, &te) {
			te.AppError.URL = src.SourceURL
		}
		return nil, err
	}
	log.Debug("template cached")
	return doc, nil
}

// Purge drops every cached template.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = map[string]entry{}
	c.mu.Unlock()
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
