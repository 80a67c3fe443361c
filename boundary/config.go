package boundary

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/tether/pin"
)

// Config represents a tether.toml extension configuration.
type Config struct {
	Arena ArenaConfig `toml:"arena"`
	Log   LogConfig   `toml:"log"`
	Boxes BoxConfig   `toml:"boxes"`
}

// ArenaConfig configures generated boundary functions' arenas.
type ArenaConfig struct {
	// Capacity is the default slot count per call. Zero selects the
	// built-in default. Individual call sites override it with
	// WithArenaCapacity.
	Capacity int `toml:"capacity"`
}

// LogConfig configures the commonlog backend.
type LogConfig struct {
	// Verbosity maps to commonlog verbosity: 0 errors/warnings only,
	// higher values add notice, info, debug.
	Verbosity int `toml:"verbosity"`
}

// BoxConfig configures registered-box behavior.
type BoxConfig struct {
	// LeakWarnings installs the finalizer backstop that unregisters and
	// warns about boxes dropped without Close.
	LeakWarnings bool `toml:"leak-warnings"`
}

// DefaultConfig returns the configuration used when no tether.toml is
// present.
func DefaultConfig() Config {
	return Config{
		Arena: ArenaConfig{Capacity: pin.DefaultCapacity},
		Boxes: BoxConfig{LeakWarnings: true},
	}
}

// LoadConfig parses tether.toml from the given directory. A missing file
// yields DefaultConfig; a malformed one is an error.
func LoadConfig(dir string) (Config, error) {
	path := filepath.Join(dir, "tether.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := DefaultConfig()
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return c, nil
}

// Apply installs the configuration process-wide: log verbosity, the
// box leak backstop, and the default arena capacity for subsequently
// generated boundary functions.
func (c Config) Apply() {
	commonlog.Configure(c.Log.Verbosity, nil)
	pin.SetLeakCheck(c.Boxes.LeakWarnings)
	if c.Arena.Capacity > 0 {
		defaultArenaCapacity = c.Arena.Capacity
	}
}
