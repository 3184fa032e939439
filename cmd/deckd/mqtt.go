package main

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher mirrors deck activity onto an MQTT broker so home-automation
// setups can react to button presses without speaking the IPC socket.
//
// Topics:
//
//	<root>/events          every externally visible broadcast, JSON envelope
//	<root>/button/<key>    action kind, published on each dispatched action
type MQTTPublisher struct {
	client    mqtt.Client
	rootTopic string
	logger    *slog.Logger
}

// NewMQTTPublisher connects to the broker. Connection failure is returned to
// the caller; the daemon treats the publisher as optional.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{
		client:    client,
		rootTopic: cfg.RootTopic,
		logger:    logger,
	}, nil
}

// OnBroadcast publishes the broadcast envelope. Called from the dispatch
// goroutine; publishes are fire-and-forget so the loop never blocks on the
// broker.
func (p *MQTTPublisher) OnBroadcast(b Broadcast) {
	msg, ok := broadcastEnvelope(b)
	if !ok {
		return
	}

	p.client.Publish(p.rootTopic+"/events", 0, false, msg)

	if d, ok := b.(BroadcastActionDispatched); ok {
		p.client.Publish(p.rootTopic+"/button/"+d.Key, 0, false, []byte(d.Kind))
	}
}

// Close disconnects from the broker, allowing in-flight publishes to drain.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
