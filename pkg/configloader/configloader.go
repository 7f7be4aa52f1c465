// Package configloader собирает конфиг из defaults, YAML-файла, ENV и
// флагов командной строки.
package configloader

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type options struct {
	defaults map[string]interface{}
	flags    map[string]*pflag.Flag
	hooks    []mapstructure.DecodeHookFunc
}

// Option настраивает Load.
type Option func(*options)

// WithDefaults задаёт значения по умолчанию (ключи через точку).
func WithDefaults(d map[string]interface{}) Option {
	return func(o *options) {
		for k, v := range d {
			o.defaults[k] = v
		}
	}
}

// WithFlag привязывает флаг к ключу конфига; явно заданный флаг
// перекрывает ENV и файл.
func WithFlag(key string, f *pflag.Flag) Option {
	return func(o *options) {
		if f != nil {
			o.flags[key] = f
		}
	}
}

// WithDecodeHook добавляет hook для доменных типов.
func WithDecodeHook(h mapstructure.DecodeHookFunc) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// Load загружает конфиг в cfgPtr: defaults → файл → ENV → флаги.
// envPrefix: префикс ENV переменных, например "QUOTEFEED".
func Load(path, envPrefix string, cfgPtr interface{}, opts ...Option) error {
	o := &options{
		defaults: make(map[string]interface{}),
		flags:    make(map[string]*pflag.Flag),
	}
	for _, opt := range opts {
		opt(o)
	}

	v := viper.New()

	// Шаг 1: defaults
	for key, val := range o.defaults {
		v.SetDefault(key, val)
	}

	// Шаг 2: environment override
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Шаг 3: флаги
	for key, f := range o.flags {
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("configloader: bind flag %q: %w", f.Name, err)
		}
	}

	// Шаг 4: файл (если задан)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	// Шаг 5: decode
	if err := decode(v.AllSettings(), cfgPtr, o.hooks...); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 6: validate if possible
	if val, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}
	return nil
}
