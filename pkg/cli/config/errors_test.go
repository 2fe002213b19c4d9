package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/bulkdm/pkg/cli/config"
)

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	sentinels := []error{
		config.ErrMissingToken,
		config.ErrUnsupportedFormat,
		config.ErrInvalidLogLevel,
		config.ErrInvalidLogFormat,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			err := goerr.Wrap(sentinel, "wrapped", goerr.V(config.ConfigPathKey, "/tmp/config.json"))
			gt.Error(t, err).Is(sentinel)

			for _, other := range sentinels {
				if other != sentinel {
					gt.Bool(t, errors.Is(err, other)).False()
				}
			}
		})
	}
}
