package commands

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/reviewboard/rb-browser/api"
	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/logging"
)

// Run the server until interrupted, reloading the configuration when the file
// changes or on SIGHUP.
func Serve(configPath string) {
	var cfg *config.Config
	configWatcher := config.Watch(configPath)

	select {
	case cfg = <-configWatcher.NewConfig:

	case err := <-configWatcher.LoadErrors:
		fatal("Unable to load configuration file", configPath, err)

	case err := <-configWatcher.Errors:
		fatal("Unable to watch configuration file", configPath, err)
	}

	logger, err := logging.NewLeveled(cfg.LogLevel)
	if err != nil {
		fatal("Unable to configure logging", configPath, err)
	}

	defer logger.Sync()

	api, err := api.New(cfg, logger.Logger)
	if err != nil {
		logger.Fatal("Could not create API", zap.Error(err))
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGTERM)

	for {
		var newCfg *config.Config
		shouldExit := false

		cfg = api.Config()
		logger.Info("Starting rb-browser server",
			zap.Uint16("port", cfg.Port),
			zap.Bool("tls", cfg.UseTLS),
			zap.String("repositoryRoot", cfg.RepositoryRoot),
			zap.Bool("singleRepository", cfg.SingleRepository))
		logger.Info("Quit the server with CONTROL-C.")

		server := api.Serve()

	wait:
		for {
			select {
			case newCfg = <-configWatcher.NewConfig:
				logger.Info("Detected configuration change, reloading...")
				break wait

			case err := <-configWatcher.LoadErrors:
				logger.Error("Configuration file is invalid, keeping the current configuration",
					zap.String("path", configPath),
					zap.Error(err))

			case err := <-configWatcher.Errors:
				logger.Fatal("Unexpected error watching configuration", zap.Error(err))

			case <-hup:
				logger.Info("Received SIGHUP, reloading configuration...")

				if newCfg, err = configWatcher.ForceReload(); err != nil {
					logger.Error("Could not reload configuration, keeping the current configuration",
						zap.String("path", configPath),
						zap.Error(err))
					newCfg = nil
					continue
				}

				break wait

			case <-interrupt:
				shouldExit = true
				signal.Reset(os.Interrupt)
				logger.Info("Received SIGINT, shutting down...")
				logger.Info("CONTROL-C again to force quit.")
				break wait

			case <-terminate:
				shouldExit = true
				logger.Info("Received SIGTERM, shutting down...")
				break wait
			}
		}

		if err = api.Shutdown(server); err != nil {
			logger.Fatal("An error occurred while shutting down the server", zap.Error(err))
		}

		logger.Info("Server shut down.")

		if shouldExit {
			configWatcher.Close()
			break
		}

		if newCfg != nil {
			if err = reload(api, logger, newCfg); err != nil {
				logger.Error("Failed to reload configuration", zap.Error(err))
			} else {
				logger.Info("Configuration reloaded.")
			}
		}
	}
}

// Apply a new configuration to the API and the logger.
//
// The log level only changes once the API has accepted the configuration.
func reload(api *api.API, logger *logging.Logger, cfg *config.Config) error {
	if err := api.SetConfig(cfg); err != nil {
		return err
	}

	return logger.SetLevel(cfg.LogLevel)
}
