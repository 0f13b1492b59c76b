package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeFunc receives a freshly loaded and validated configuration.
type ChangeFunc func(*Config)

// ErrorFunc receives a reload that failed to unmarshal or validate. The
// previous configuration stays in effect.
type ErrorFunc func(fsnotify.Event, error)

// Watch starts watching the config file viper loaded and invokes onChange
// after every valid write. It must be called after viper.ReadInConfig.
func Watch(onChange ChangeFunc, onError ErrorFunc) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		handleChange(e, onChange, onError)
	})
	viper.WatchConfig()
}

func handleChange(e fsnotify.Event, onChange ChangeFunc, onError ErrorFunc) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := Load()
	if err != nil {
		if onError != nil {
			onError(e, err)
		}
		return
	}
	if onChange != nil {
		onChange(cfg)
	}
}
