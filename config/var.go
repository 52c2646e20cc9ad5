package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
)

// Duration accepts the human form ("5s", "300ms") in yaml.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Errorf("%w : bad duration %q", errors.ErrConfig, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
