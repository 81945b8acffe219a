package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/store"
	"github.com/vmcpio/vmcpd/pkg/store/inmemory"
	"github.com/vmcpio/vmcpd/pkg/store/sqlite"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/adapter"
	"github.com/vmcpio/vmcpd/pkg/vmcp/capcache"
	vmcpconfig "github.com/vmcpio/vmcpd/pkg/vmcp/config"
	"github.com/vmcpio/vmcpd/pkg/vmcp/composer"
	"github.com/vmcpio/vmcpd/pkg/vmcp/customtool"
	"github.com/vmcpio/vmcpd/pkg/vmcp/upstream"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no configuration file specified, use --config")
	}

	logger.Infof("loading configuration: %s", configPath)
	cfg, err := vmcpconfig.NewYAMLLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	listen := cfg.Listen
	if override := viper.GetString("listen"); override != "" {
		listen = override
	}

	usageLog, closeStore, err := openUsageLog(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := upstream.NewRegistry()
	for _, uc := range cfg.Upstreams {
		us := uc.ToUpstreamServer()
		if !us.Enabled {
			continue
		}
		sess := upstream.NewSession(us)
		if err := sess.Connect(ctx); err != nil {
			logger.Warnf("upstream %s: initial connect failed, will retry lazily: %v", us.Name, err)
		}
		registry.Register(sess)
	}

	a := adapter.New()
	for _, vc := range cfg.VMCPs {
		if err := mountVMCP(ctx, a, vc, registry, usageLog); err != nil {
			return fmt.Errorf("mounting vmcp %q: %w", vc.Name, err)
		}
		logger.Infof("mounted vmcp %q at /private/%s/vmcp", vc.Name, vc.Name)
	}

	srv := &http.Server{Addr: listen, Handler: a.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = registry.CloseAll()
		return nil
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	}
}

func openUsageLog(ctx context.Context, storePath string) (store.UsageLogStore, func(), error) {
	if storePath == "" {
		logger.Infof("no store_path configured, usage log is in-memory only")
		return inmemory.New().UsageLog(), func() {}, nil
	}
	db, err := sqlite.Open(ctx, storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store %s: %w", storePath, err)
	}
	return sqlite.NewUsageLogStore(db), func() { _ = db.Close() }, nil
}

// mountVMCP builds the Composer for one configured vMCP composition,
// wiring its custom tool engines (including the circular Invoker binding
// a Prompt/HTTP engine needs to call back into the composition) and
// mounts it on the adapter, decorated with usage logging.
func mountVMCP(ctx context.Context, a *adapter.Adapter, vc vmcpconfig.VMCPConfig, registry *upstream.Registry, usageLog store.UsageLogStore) error {
	v := vc.ToVMCP()
	cache := capcache.New()

	sources := make(map[string]capcache.Source, len(v.Upstreams))
	for _, ref := range v.Upstreams {
		sess, err := registry.MustGet(ref.ServerID)
		if err != nil {
			return err
		}
		sources[ref.ServerID] = sess
	}
	if err := cache.RefreshAll(ctx, sources); err != nil {
		logger.Warnf("vmcp %q: initial capability refresh had errors: %v", v.Name, err)
	}

	promptEngine := &customtool.PromptEngine{}
	httpEngine := customtool.NewHTTPEngine(nil, envMap(v.Env))
	engines := map[vmcp.CustomToolKind]customtool.Engine{
		vmcp.CustomToolPrompt: promptEngine,
		vmcp.CustomToolHTTP:   httpEngine,
	}
	if scriptEngine, err := customtool.NewScriptEngine(); err != nil {
		logger.Warnf("vmcp %q: script engine unavailable (no docker socket?): %v", v.Name, err)
	} else {
		engines[vmcp.CustomToolScript] = scriptEngine
	}

	c := composer.New(&v, registry, cache, engines)
	invoker := c.Invoker()
	promptEngine.Invoker = invoker
	httpEngine.Invoker = invoker

	var dispatcher adapter.Dispatcher = c
	if usageLog != nil {
		dispatcher = newLoggingDispatcher(v.ID, dispatcher, usageLog)
	}

	secrets := make([]string, 0, len(v.Env))
	for _, e := range v.Env {
		if e.Secret {
			secrets = append(secrets, e.Value)
		}
	}

	return a.Mount(ctx, v.Name, dispatcher, secrets)
}

func envMap(env []vmcp.EnvVar) map[string]any {
	out := make(map[string]any, len(env))
	for _, e := range env {
		out[e.Name] = e.Value
	}
	return out
}
