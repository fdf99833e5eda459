package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// How long to wait for a removed configuration file to be replaced.
const replaceDelay = 100 * time.Millisecond

// ConfigWatcher reloads a configuration file whenever it changes.
//
// Every successful load is sent on NewConfig. A file that fails to load is
// reported on LoadErrors and the watcher keeps running, so the caller can
// keep its previous configuration. Errors is sent a fatal error when the file
// can no longer be watched, after which both channels are closed.
type ConfigWatcher struct {
	NewConfig  <-chan *Config
	LoadErrors <-chan error
	Errors     <-chan error

	reload chan<- struct{}
	done   chan struct{}
}

// Watch the configuration file at the given path.
//
// The file is loaded immediately and the result is the first value sent on
// NewConfig or LoadErrors.
func Watch(path string) *ConfigWatcher {
	configChan := make(chan *Config, 1)
	loadErrorChan := make(chan error, 1)
	errorChan := make(chan error, 1)
	reload := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(configChan)
		defer close(loadErrorChan)
		defer close(errorChan)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			errorChan <- errors.Wrap(err, "could not create file watcher")
			return
		}

		defer watcher.Close()

		if err = watcher.Add(path); err != nil {
			errorChan <- errors.Wrapf(err, "could not watch \"%s\"", path)
			return
		}

		for {
			if cfg, err := Load(path); err != nil {
				select {
				case loadErrorChan <- err:
				case <-done:
					return
				}
			} else {
				select {
				case configChan <- cfg:
				case <-done:
					return
				}
			}

		wait:
			for {
				select {
				case evt, ok := <-watcher.Events:
					if !ok {
						return
					}

					if evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
						// The file may be in the middle of being replaced. Wait
						// for it to come back.
						time.Sleep(replaceDelay)

						if err = watcher.Add(path); err != nil {
							errorChan <- errors.Errorf("configuration file \"%s\" was removed", path)
							return
						}

						break wait
					}

					if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						break wait
					}

				case err, ok := <-watcher.Errors:
					if ok {
						errorChan <- errors.Wrapf(err, "error watching \"%s\"", path)
					}
					return

				case <-reload:
					break wait

				case <-done:
					return
				}
			}
		}
	}()

	return &ConfigWatcher{
		NewConfig:  configChan,
		LoadErrors: loadErrorChan,
		Errors:     errorChan,
		reload:     reload,
		done:       done,
	}
}

// Reload the configuration file now and return the result.
func (cw *ConfigWatcher) ForceReload() (*Config, error) {
	select {
	case cw.reload <- struct{}{}:
	case err := <-cw.Errors:
		return nil, err
	}

	select {
	case cfg := <-cw.NewConfig:
		return cfg, nil

	case err := <-cw.LoadErrors:
		return nil, err

	case err := <-cw.Errors:
		return nil, err
	}
}

// Stop watching the file.
func (cw *ConfigWatcher) Close() {
	close(cw.done)
}
