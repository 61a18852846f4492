package tele

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	tele_config "github.com/temoto/easyuart/tele/config"
)

// Monitor subscribes to frames published by relay and decodes them
// with local registry layout, remote counterpart of reading UART directly.
type Monitor struct {
	log    *log2.Log
	config tele_config.Config
	codec  frame.Codec
	layout frame.Layout
	fn     frame.HandlerFunc
	m      mqtt.Client
	mopt   *mqtt.ClientOptions
}

func NewMonitor(log *log2.Log, teleConfig tele_config.Config, codec frame.Codec, layout frame.Layout, fn frame.HandlerFunc) (*Monitor, error) {
	if teleConfig.MqttBroker == "" {
		return nil, errors.NotValidf("tele.mqtt_broker=empty")
	}
	self := &Monitor{
		log:    log,
		config: teleConfig,
		codec:  codec,
		layout: layout,
		fn:     fn,
	}

	mqttLog := log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	networkTimeout := helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, defaultNetworkTimeout)
	if networkTimeout < 1*time.Second {
		networkTimeout = 1 * time.Second
	}
	connectTimeout := networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(teleConfig.KeepaliveSec, networkTimeout/2)
	tlsconf, err := tlsConfig(teleConfig)
	if err != nil {
		return nil, err
	}

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(teleConfig.ID() + "-monitor").
		SetConnectTimeout(connectTimeout).
		SetDefaultPublishHandler(self.onUnexpected).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetOnConnectHandler(self.onConnect).
		SetOrderMatters(true).
		SetPingTimeout(networkTimeout).
		SetUsername(teleConfig.MqttUsername).
		SetPassword(teleConfig.MqttPassword).
		SetWriteTimeout(networkTimeout)
	if tlsconf != nil {
		self.mopt.SetTLSConfig(tlsconf)
	}
	self.m = mqtt.NewClient(self.mopt)
	return self, nil
}

// Run connects and delivers decoded frames to handler until ctx is done.
// Subscription is renewed on every reconnect.
func (self *Monitor) Run(ctx context.Context) error {
	t := self.m.Connect()
	if err := self.tokenWait(ctx, t, "connect"); err != nil {
		return err
	}
	<-ctx.Done()
	self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
	return nil
}

func (self *Monitor) onConnect(c mqtt.Client) {
	topic := self.config.TopicFrame()
	self.log.Debugf("monitor connected, subscribe topic=%s", topic)
	// handler must not block paho router, so wait in background
	go func() {
		t := c.Subscribe(topic, 1, self.onFrame)
		if !t.WaitTimeout(self.mopt.ConnectTimeout) {
			self.log.Errorf("monitor subscribe topic=%s timeout", topic)
			return
		}
		if err := t.Error(); err != nil {
			self.log.Errorf("monitor subscribe topic=%s err=%v", topic, err)
		}
	}()
}

func (self *Monitor) onFrame(_ mqtt.Client, msg mqtt.Message) {
	f, err := self.codec.Decode(msg.Payload(), self.layout)
	if err != nil {
		err = errors.Annotatef(err, "monitor topic=%s payload=%x", msg.Topic(), msg.Payload())
		self.fn(nil, err)
		return
	}
	self.fn(&f, nil)
}

func (self *Monitor) onUnexpected(_ mqtt.Client, msg mqtt.Message) {
	self.log.Errorf("monitor unexpected message topic=%s payload=%x", msg.Topic(), msg.Payload())
}

func (self *Monitor) tokenWait(ctx context.Context, t mqtt.Token, tag string) error {
	timeout := self.mopt.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.WaitTimeout(timeout) {
		return errors.Timeoutf("monitor MQTT %s", tag)
	}
	return errors.Annotatef(t.Error(), "monitor MQTT %s", tag)
}
