// Package mqttbridge connects the trainer to an MQTT broker: IMU samples
// published by a phone or board bridge are subscribed as motion input, and
// live frames and final results are published for dashboards.
package mqttbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

const (
	DefaultPrefix  = "weldcoach"
	DefaultTimeout = 5 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: broker did not respond")

// Client is the subset of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Connect dials broker (for example tcp://localhost:1883).
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(DefaultTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	monitoring.Logf("mqtt: connected to %s as %s", broker, clientID)
	return client, nil
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(DefaultTimeout) {
		return ErrTimeout
	}
	return token.Error()
}

// LiveTopic carries one frame per tick for t.
func LiveTopic(prefix string, t technique.Technique) string {
	return prefix + "/" + strings.ToLower(t.String()) + "/live"
}

// ResultTopic carries the retained result of the latest session for t.
func ResultTopic(prefix string, t technique.Technique) string {
	return prefix + "/" + strings.ToLower(t.String()) + "/result"
}

// Publisher sends runner updates to the broker. Tick frames are fire and
// forget at QoS 0; the result is retained at QoS 1 and waited for.
type Publisher struct {
	client Client
	live   string
	result string

	mu     sync.Mutex
	sent   int
	failed int
}

func NewPublisher(c Client, prefix string, t technique.Technique) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{client: c, live: LiveTopic(prefix, t), result: ResultTopic(prefix, t)}
}

// Publish is a trainer.Runner OnUpdate hook. A result that cannot be
// encoded is counted as failed and the live frame goes out without it.
func (p *Publisher) Publish(u trainer.Update) {
	frame := u.Frame()
	var res []byte
	if frame.Result != nil {
		var err error
		if res, err = json.Marshal(frame.Result); err != nil {
			monitoring.Logf("mqtt: marshal result %s: %v", frame.Result.ID, err)
			p.count(false)
			frame.Result = nil
		}
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		monitoring.Logf("mqtt: marshal frame: %v", err)
		p.count(false)
		return
	}
	p.client.Publish(p.live, 0, false, payload)
	p.count(true)

	if res == nil {
		return
	}
	if err := wait(p.client.Publish(p.result, 1, true, res)); err != nil {
		monitoring.Logf("mqtt: publish result to %s: %v", p.result, err)
		p.count(false)
		return
	}
	p.count(true)
	monitoring.Logf("mqtt: published session %s to %s", u.Result.ID, p.result)
}

func (p *Publisher) count(ok bool) {
	p.mu.Lock()
	if ok {
		p.sent++
	} else {
		p.failed++
	}
	p.mu.Unlock()
}

// Stats returns the number of messages handed to the client and the
// number that could not be sent.
func (p *Publisher) Stats() (sent, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

// MotionSink receives parsed IMU samples. *trainer.Slots is one.
type MotionSink interface {
	SetMotion(motion.Sample)
}

// MotionSubscription feeds one topic into a MotionSink.
type MotionSubscription struct {
	client Client
	topic  string

	mu      sync.Mutex
	skipped int
}

// SubscribeMotion parses every message on topic with motion.ParseLine and
// stores the sample in sink. Malformed payloads are counted and dropped.
func SubscribeMotion(c Client, topic string, sink MotionSink) (*MotionSubscription, error) {
	sub := &MotionSubscription{client: c, topic: topic}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		s, err := motion.ParseLine(string(msg.Payload()))
		if err != nil {
			sub.mu.Lock()
			sub.skipped++
			n := sub.skipped
			sub.mu.Unlock()
			if n == 1 {
				monitoring.Logf("mqtt: dropping malformed motion on %s: %v", topic, err)
			}
			return
		}
		sink.SetMotion(s)
	}
	if err := wait(c.Subscribe(topic, 0, handler)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	monitoring.Logf("mqtt: subscribed to %s", topic)
	return sub, nil
}

// Skipped returns the number of malformed payloads dropped so far.
func (s *MotionSubscription) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close unsubscribes from the topic.
func (s *MotionSubscription) Close() error {
	return wait(s.client.Unsubscribe(s.topic))
}

var _ MotionSink = (*trainer.Slots)(nil)
