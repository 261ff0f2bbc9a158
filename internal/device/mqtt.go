package device

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ayusman/myomod/internal/telemetry"
)

// MQTTConfig locates the broker that BLE gateways publish to.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
)

// Topic returns the topic that carries stream k under prefix:
// <prefix>/<characteristic-uuid>.
func Topic(prefix string, k telemetry.Kind) (string, error) {
	u, err := CharacteristicFor(k)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(prefix, "/") + "/" + u.String(), nil
}

// ParseTopic returns the stream carried by topic.
func ParseTopic(prefix, topic string) (telemetry.Kind, error) {
	rest, ok := strings.CutPrefix(topic, strings.TrimSuffix(prefix, "/")+"/")
	if !ok {
		return 0, fmt.Errorf("device: topic %q outside prefix %q", topic, prefix)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return 0, fmt.Errorf("device: topic %q: %w", topic, err)
	}
	k, ok := KindForCharacteristic(u)
	if !ok {
		return 0, fmt.Errorf("device: topic %q: unknown characteristic", topic)
	}
	return k, nil
}

// clientOptions keeps paho's ordered delivery. Handlers then run one at a
// time on the router goroutine, so a subscriber that stops reading the
// subscription channel also stops the broker connection from delivering.
// Counters arrive in publish order, which the gap tracker relies on.
func clientOptions(cfg MQTTConfig, suffix string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + suffix).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true)
}

func connect(cfg MQTTConfig, suffix string) (mqtt.Client, error) {
	client := mqtt.NewClient(clientOptions(cfg, suffix))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("device: connect %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTTSource receives notifications relayed by a BLE gateway.
type MQTTSource struct {
	cfg MQTTConfig
}

// NewMQTTSource creates a source for the given broker.
func NewMQTTSource(cfg MQTTConfig) *MQTTSource {
	return &MQTTSource{cfg: cfg}
}

// Name implements Source.
func (s *MQTTSource) Name() string {
	return "mqtt:" + s.cfg.Broker
}

// Subscribe connects to the broker and subscribes to every characteristic
// topic under the prefix.
func (s *MQTTSource) Subscribe(ctx context.Context) (*Subscription, error) {
	client, err := connect(s.cfg, "-sub")
	if err != nil {
		return nil, err
	}
	log.Printf("device: connected to MQTT broker at %s", s.cfg.Broker)

	filter := strings.TrimSuffix(s.cfg.TopicPrefix, "/") + "/#"
	ready := make(chan error, 1)

	sub := NewSubscription(ctx, func(ctx context.Context, emit EmitFunc) error {
		defer client.Disconnect(mqttQuiesceMillis)

		token := client.Subscribe(filter, 0, s.handler(emit))
		token.Wait()
		ready <- token.Error()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("device: subscribed to %s", filter)

		<-ctx.Done()
		client.Unsubscribe(filter).WaitTimeout(time.Second)
		return ctx.Err()
	})

	if err := <-ready; err != nil {
		sub.Close()
		return nil, fmt.Errorf("device: subscribe %s: %w", filter, err)
	}
	return sub, nil
}

// handler turns broker messages into notifications. Messages on unknown
// topics are logged and skipped. emit blocks until the subscriber takes the
// notification or the subscription ends.
func (s *MQTTSource) handler(emit EmitFunc) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		k, err := ParseTopic(s.cfg.TopicPrefix, msg.Topic())
		if err != nil {
			log.Printf("device: %v", err)
			return
		}
		data := make([]byte, len(msg.Payload()))
		copy(data, msg.Payload())
		emit(Notification{Kind: k, Data: data, ReceivedAt: time.Now()})
	}
}

// MQTTPublisher relays notifications to a broker. It is the gateway side
// of MQTTSource.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	client, err := connect(cfg, "-pub")
	if err != nil {
		return nil, err
	}
	return &MQTTPublisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// Publish sends one notification.
func (p *MQTTPublisher) Publish(n Notification) error {
	topic, err := Topic(p.prefix, n.Kind)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 0, false, n.Data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("device: publish %s: %w", topic, err)
	}
	return nil
}

// Forward publishes every notification of sub until it ends or ctx is
// cancelled, and returns the number of notifications sent.
func (p *MQTTPublisher) Forward(ctx context.Context, sub *Subscription) (int, error) {
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return sent, nil
		case n, ok := <-sub.C():
			if !ok {
				return sent, sub.Err()
			}
			if err := p.Publish(n); err != nil {
				return sent, err
			}
			sent++
		}
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(mqttQuiesceMillis)
}
