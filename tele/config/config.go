// Separate package is workaround to import cycles.
package tele_config

import (
	"fmt"
	"net/url"

	"github.com/juju/errors"
)

const DefaultClientID = "easyuart"

type Config struct { //nolint:maligned
	Enabled           bool   `hcl:"enable"`
	ClientID          string `hcl:"client_id"`
	LogDebug          bool   `hcl:"log_debug"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	StatIntervalSec   int    `hcl:"stat_interval_sec"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	TopicPrefix       string `hcl:"topic_prefix"`
	// publish per-variable JSON in addition to raw frames
	PublishVars bool `hcl:"publish_vars"`
	// retained messages let late subscribers see last value
	Retain    bool   `hcl:"retain"`
	SpoolPath string `hcl:"spool_path"`
}

// Validate checks only enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MqttBroker == "" {
		return errors.NotValidf("config tele.mqtt_broker=empty")
	}
	if _, err := url.ParseRequestURI(c.MqttBroker); err != nil {
		return errors.Annotatef(err, "config tele.mqtt_broker=%s", c.MqttBroker)
	}
	if c.KeepaliveSec < 0 || c.KeepaliveSec > 0xffff {
		return errors.NotValidf("config tele.keepalive_sec=%d", c.KeepaliveSec)
	}
	if c.NetworkTimeoutSec < 0 {
		return errors.NotValidf("config tele.network_timeout_sec=%d", c.NetworkTimeoutSec)
	}
	return nil
}

func (c *Config) ID() string {
	if c.ClientID == "" {
		return DefaultClientID
	}
	return c.ClientID
}

func (c *Config) Prefix() string {
	if c.TopicPrefix == "" {
		return c.ID()
	}
	return c.TopicPrefix
}

func (c *Config) TopicFrame() string       { return c.Prefix() + "/frame" }
func (c *Config) TopicState() string       { return c.Prefix() + "/state" }
func (c *Config) TopicStat() string        { return c.Prefix() + "/stat" }
func (c *Config) TopicVar(id uint8) string { return fmt.Sprintf("%s/var/%d", c.Prefix(), id) }
