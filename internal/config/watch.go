package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Watcher re-reads the config file when it changes on disk and hands the
// decoded result to a callback. Invalid edits are logged and ignored.
type Watcher struct {
	v        *viper.Viper
	logger   zerolog.Logger
	onChange func(*Config)
}

// NewWatcher creates a watcher for the file at configPath.
func NewWatcher(configPath string, logger zerolog.Logger, onChange func(*Config)) *Watcher {
	return &Watcher{
		v:        newViper(configPath),
		logger:   logger.With().Str("component", "config").Logger(),
		onChange: onChange,
	}
}

// Start begins watching. A missing file is not an error; there is simply
// nothing to watch.
func (w *Watcher) Start() error {
	if err := w.v.ReadInConfig(); err != nil {
		if isNotFound(err) {
			w.logger.Debug().Msg("No config file to watch")
			return nil
		}
		return err
	}

	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()

	w.logger.Info().Str("file", w.v.ConfigFileUsed()).Msg("Watching config file")
	return nil
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	cfg, err := decode(w.v)
	if err != nil {
		w.logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
		return
	}

	w.logger.Info().Str("file", e.Name).Msg("Config file changed")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
