package cmn

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Config is the node-level configuration file shared by the devstore
// server and embedding processes: JSON on disk, defaults applied after
// parse.
type Config struct {
	LogLevel   string   `json:"log_level"`
	Listen     string   `json:"listen"`
	Mountpaths []string `json:"mountpaths"`
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if len(c.Mountpaths) == 0 {
		c.Mountpaths = []string{"/tmp/mergestore"}
	}
}

// LoadConfig parses the JSON config at path; a missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	c := &Config{}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.applyDefaults()
			return c, nil
		}
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	if err := jsoniter.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	c.applyDefaults()
	return c, nil
}
