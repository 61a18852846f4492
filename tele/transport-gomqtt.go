package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	tele_config "github.com/temoto/easyuart/tele/config"
	tele_mqtt "github.com/temoto/easyuart/tele/mqtt"
)

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, online, will []byte) error
	// Publish blocks until broker ack or network timeout, false means retry later.
	Publish(topic string, payload []byte, retain bool) bool
	Close()
}

type transportGomqtt struct {
	log            *log2.Log
	m              *tele_mqtt.Client
	ctx            context.Context
	cancel         context.CancelFunc
	networkTimeout time.Duration
}

func (self *transportGomqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, online, will []byte) error {
	self.log = log
	mqttLog := log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, defaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	keepaliveSec := teleConfig.KeepaliveSec
	if keepaliveSec == 0 {
		keepaliveSec = int(self.networkTimeout / time.Second)
	}

	tlsconf, err := tlsConfig(teleConfig)
	if err != nil {
		return err
	}
	topicState := teleConfig.TopicState()
	opt := tele_mqtt.ClientOptions{
		BrokerURL:      teleConfig.MqttBroker,
		TLS:            tlsconf,
		NetworkTimeout: self.networkTimeout,
		KeepaliveSec:   uint16(keepaliveSec),
		ClientID:       teleConfig.ID(),
		Username:       teleConfig.MqttUsername,
		Password:       teleConfig.MqttPassword,
		Online:         &packet.Message{Topic: topicState, Payload: online, QOS: packet.QOSAtMostOnce, Retain: true},
		Will:           &packet.Message{Topic: topicState, Payload: will, QOS: packet.QOSAtLeastOnce, Retain: true},
		Log:            mqttLog,
	}
	self.ctx, self.cancel = context.WithCancel(ctx)
	self.m, err = tele_mqtt.NewClient(opt)
	return errors.Annotate(err, "mqtt")
}

func (self *transportGomqtt) Close() {
	self.cancel()
	if err := self.m.Close(); err != nil {
		self.log.Debugf("tele mqtt close err=%v", err)
	}
}

func (self *transportGomqtt) Publish(topic string, payload []byte, retain bool) bool {
	ctx, cancel := context.WithTimeout(self.ctx, self.networkTimeout)
	defer cancel()
	msg := &packet.Message{Topic: topic, Payload: payload, QOS: packet.QOSAtLeastOnce, Retain: retain}
	if err := self.m.Publish(ctx, msg); err != nil {
		self.log.Errorf("tele: MQTT publish topic=%s err=%v", topic, err)
		return false
	}
	return true
}

func tlsConfig(teleConfig tele_config.Config) (*tls.Config, error) {
	if teleConfig.TlsCaFile == "" {
		return nil, nil
	}
	tlsconf := new(tls.Config)
	tlsconf.RootCAs = x509.NewCertPool()
	cabytes, err := ioutil.ReadFile(teleConfig.TlsCaFile)
	if err != nil {
		return nil, errors.Annotate(err, "tele tls_ca_file")
	}
	if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
		return nil, errors.NotValidf("tele tls_ca_file=%s no certificates", teleConfig.TlsCaFile)
	}
	return tlsconf, nil
}
