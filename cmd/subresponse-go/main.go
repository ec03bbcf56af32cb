package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subresponse-go/internal/config"
	"github.com/John-Robertt/subresponse-go/internal/fetch"
	"github.com/John-Robertt/subresponse-go/internal/httpapi"
	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/rules"
	"github.com/John-Robertt/subresponse-go/internal/store"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径（可选）")
	listen := flag.String("listen", "", "HTTP 监听地址（覆盖配置文件）")
	database := flag.String("database", "", "sqlite 数据库路径（覆盖配置文件）")
	logLevel := flag.String("log-level", "", "日志级别：debug|info|warn|error（覆盖配置文件与 LOG_LEVEL）")
	rulesFile := flag.String("rules-file", "", "启动时导入的响应规则文件（覆盖配置文件）")
	xrayJSONFallback := flag.Bool("xray-json-fallback", false, "对支持的客户端以 Xray-JSON 代替 base64 链接")
	healthcheck := flag.Bool("healthcheck", false, "请求本服务的 /healthz 后退出（用于容器健康检查）")
	healthcheckURL := flag.String("healthcheck-url", "", "健康检查地址（默认由 listen 推导）")
	healthcheckTimeout := flag.Duration("healthcheck-timeout", 3*time.Second, "健康检查超时")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "database":
			cfg.Database = *database
		case "log-level":
			cfg.LogLevel = *logLevel
		case "rules-file":
			cfg.RulesFile = *rulesFile
		case "xray-json-fallback":
			cfg.XrayJSONFallback = *xrayJSONFallback
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *healthcheck {
		u := *healthcheckURL
		if u == "" {
			if u, err = deriveHealthzURL(cfg.Listen); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		if err := runHealthcheck(u, *healthcheckTimeout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func run(cfg config.Config, log *logrus.Logger) error {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fopt := fetch.Options{Timeout: cfg.FetchTimeout}
	if cfg.RulesFile != "" {
		if err := seedRules(context.Background(), st, cfg.RulesFile, fopt, log); err != nil {
			return err
		}
	}

	cache := template.NewCache(st, template.CacheOptions{
		TTL:    cfg.TemplateTTL,
		Fetch:  fopt,
		Logger: log.WithField("component", "template"),
	})
	svc := pipeline.New(st, cache, pipeline.Options{
		XrayJSONFallback: cfg.XrayJSONFallback,
		Logger:           log.WithField("component", "pipeline"),
	})

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: httpapi.NewHandler(httpapi.Options{
			Subscriptions:       svc,
			Ready:               st.Ping,
			RequestTimeout:      cfg.RequestTimeout,
			ProfileTitle:        cfg.ProfileTitle,
			UpdateIntervalHours: cfg.UpdateIntervalHours,
			SupportURL:          cfg.SupportURL,
			Logger:              log.WithField("component", "http"),
		}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	log.WithFields(logrus.Fields{"listen": cfg.Listen, "database": cfg.Database}).Info("listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload(ctx, st, cache, cfg.RulesFile, fopt, log)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type rulesStore interface {
	LoadRulesConfig(ctx context.Context) (*model.RulesConfig, error)
	SaveRulesConfig(ctx context.Context, cfg *model.RulesConfig) error
}

// reload re-imports the rules source and drops every cached template, so
// edits made in the database show up before the TTL runs out.
func reload(ctx context.Context, st rulesStore, cache *template.Cache, source string, fopt fetch.Options, log logrus.FieldLogger) {
	if source != "" {
		if err := seedRules(ctx, st, source, fopt, log); err != nil {
			log.WithError(err).Warn("rules reload failed; keeping stored rules")
		}
	}
	cache.Purge()
	log.Info("reloaded")
}

// seedRules imports the rules from a local file or an http(s) URL, skipping
// the write when the stored config is already identical.
func seedRules(ctx context.Context, st rulesStore, path string, fopt fetch.Options, log logrus.FieldLogger) error {
	b, err := readRulesSource(ctx, path, fopt)
	if err != nil {
		return err
	}
	cfg, err := rules.ParseConfig(path, b)
	if err != nil {
		return err
	}
	if _, err := rules.Compile(cfg); err != nil {
		return err
	}

	current, err := st.LoadRulesConfig(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if current != nil && reflect.DeepEqual(current, cfg) {
		log.WithField("rules_file", path).Debug("rules unchanged")
		return nil
	}
	if err := st.SaveRulesConfig(ctx, cfg); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"rules_file": path, "version": cfg.Version, "rules": len(cfg.Rules)}).Info("rules imported")
	return nil
}

func readRulesSource(ctx context.Context, path string, fopt fetch.Options) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		text, err := fetch.FetchTextWithOptions(ctx, fetch.KindRules, path, fopt)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return b, nil
}

// deriveHealthzURL turns a listen address into a URL the local healthcheck
// can reach. Wildcard hosts become loopback.
func deriveHealthzURL(listen string) (string, error) {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return "", errors.New("empty listen address")
	}
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return strings.TrimRight(listen, "/") + "/healthz", nil
	}
	if _, err := strconv.Atoi(listen); err == nil {
		listen = ":" + listen
	}

	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
