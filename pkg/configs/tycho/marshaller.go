package tycho

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// load tycho config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)`.
//
// Misconfiguration causes panic.
func LoadTychoConfig(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*Config, error) {
	var out *ConfigMarshall
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}
	return TrySeal(out), nil
}

// TryUnmarshal is Unmarshal which reports misconfiguration as error, not panic.
func TryUnmarshal(conf []byte) (c *Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("misconfiguration: %v", r)
		}
	}()
	return Unmarshal(conf)
}
