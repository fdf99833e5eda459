// Package api serves repository pages over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reviewboard/rb-browser/browse"
	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

// How long in-flight requests are given to finish during shutdown.
const shutdownTimeout = 5 * time.Second

type API struct {
	lock    sync.RWMutex
	config  *config.Config
	handler http.Handler

	templates pageTemplates
	metrics   *metrics
	logger    *zap.Logger
}

// Create a new API serving the given configuration.
func New(cfg *config.Config, logger *zap.Logger) (*API, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	api := &API{
		templates: templates,
		metrics:   newMetrics(),
		logger:    logger,
	}

	if err = api.SetConfig(cfg); err != nil {
		return nil, err
	}

	return api, nil
}

// Replace the configuration.
//
// The repository store and renderer are rebuilt from the new configuration.
// If that fails, the previous configuration stays in effect.
func (api *API) SetConfig(cfg *config.Config) error {
	store, err := repositories.NewStore(cfg.StoreOptions(), api.logger)
	if err != nil {
		return errors.Wrap(err, "could not open repository store")
	}

	renderer, err := markdown.New(cfg.HighlightStyle)
	if err != nil {
		return err
	}

	service := browse.New(store, renderer, browse.Options{
		CommitLimit:  cfg.CommitLimit,
		CloneBaseURL: cfg.CloneBaseURL,
	}, api.logger)

	router := newRouter(&handlers{
		service:   service,
		templates: api.templates,
		logger:    api.logger,
	}, api.metrics)

	api.lock.Lock()
	defer api.lock.Unlock()

	api.config = cfg
	api.handler = router

	return nil
}

// Return the current configuration.
func (api *API) Config() *config.Config {
	api.lock.RLock()
	defer api.lock.RUnlock()

	return api.config
}

// Start serving in the background, returning the server.
func (api *API) Serve() *http.Server {
	cfg := api.Config()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           loggingMiddleware(api.logger, api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error

		if cfg.UseTLS {
			err = server.ListenAndServeTLS(cfg.SSLCertificate, cfg.SSLKey)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			api.logger.Fatal("Could not serve", zap.String("addr", server.Addr), zap.Error(err))
		}
	}()

	return server
}

// Stop a server started by Serve, waiting for in-flight requests.
func (api *API) Shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(ctx)
}

// Serve a request with the current configuration.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.lock.RLock()
	handler := api.handler
	api.lock.RUnlock()

	handler.ServeHTTP(w, r)
}
