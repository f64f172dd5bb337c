// Package config loads VM tuning parameters from a TOML file, mirroring
// the compile-time constants of the source's vm.h (§4.1, §4.7) as
// runtime-overridable settings.
package config

import (
	"io"
	"os"

	"github.com/naoina/toml"
)

// Config holds every tunable the VM consults at startup. Zero values are
// never used directly — Defaults() seeds the struct before a TOML file is
// decoded on top of it, so a partial config file only overrides the
// fields it mentions.
type Config struct {
	StackMax      int  `toml:"stack_max"`
	FrameStackMax int  `toml:"frame_stack_max"`
	GlobalsMax    int  `toml:"globals_max"`
	MaxWorkers    int  `toml:"max_workers"`
	MaxMutexes    int  `toml:"max_mutexes"`
	ThreadNameMax int  `toml:"thread_name_max"`
	VerboseErrors bool `toml:"verbose_errors"`
}

// Defaults mirrors the source's vm.h constants: VM_STACK_MAX=8192,
// VM_CALL_STACK_MAX=4096, VM_GLOBALS_MAX=4096, VM_MAX_WORKERS=15,
// VM_MAX_MUTEXES=64, THREAD_NAME_MAX=64.
func Defaults() Config {
	return Config{
		StackMax:      8192,
		FrameStackMax: 4096,
		GlobalsMax:    4096,
		MaxWorkers:    15,
		MaxMutexes:    64,
		ThreadNameMax: 64,
		VerboseErrors: false,
	}
}

// Load reads a TOML config file from path, merging it onto Defaults().
// A missing file is not an error — the VM runs on defaults (§A.3).
func Load(path string) (Config, error) {
	cfg := Defaults()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	return decode(f, cfg)
}

func decode(r io.Reader, base Config) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return base, err
	}
	if err := toml.Unmarshal(data, &base); err != nil {
		return base, err
	}
	return base, nil
}
