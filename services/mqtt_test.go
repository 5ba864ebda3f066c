package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"wheelsync/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// fakeToken is an already completed token
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeMQTTClient records publishes and subscriptions; other methods are not used
type fakeMQTTClient struct {
	mqtt.Client

	mu         sync.Mutex
	published  []publishedMessage
	subscribed []string
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &fakeToken{}
}

func (c *fakeMQTTClient) Published() []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedMessage(nil), c.published...)
}

func TestMQTTPublishesRetainedState(t *testing.T) {
	client := &fakeMQTTClient{}
	m := newMQTTService(client, "wheelchair", "s1", newFakeClock(), zap.NewNop())

	state := models.NewDeviceState("s1", 50)
	state.Motor = models.MotorState{Running: true, Speed: 70, Direction: models.DirectionForward}
	m.OnStateChanged(state)
	m.OnCommandFailed("left: Turning functionality disabled")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Start(ctx)
	}()
	eventually(t, func() bool { return len(client.Published()) == 2 }, "two publishes")
	cancel()
	<-done

	msgs := client.Published()
	if msgs[0].topic != "wheelchair/s1/state" || !msgs[0].retained || msgs[0].qos != 1 {
		t.Fatalf("state message = %s retained=%v qos=%d", msgs[0].topic, msgs[0].retained, msgs[0].qos)
	}
	var event models.StateEvent
	if err := json.Unmarshal(msgs[0].payload, &event); err != nil {
		t.Fatalf("decode state event: %v", err)
	}
	if event.Type != models.EventStateChanged || event.State == nil || event.State.Motor.Speed != 70 {
		t.Fatalf("state event = %+v", event)
	}

	if msgs[1].topic != "wheelchair/s1/events" || msgs[1].retained {
		t.Fatalf("failure message = %s retained=%v", msgs[1].topic, msgs[1].retained)
	}
	if err := json.Unmarshal(msgs[1].payload, &event); err != nil {
		t.Fatalf("decode failure event: %v", err)
	}
	if event.Type != models.EventCommandFailed || event.Reason == "" {
		t.Fatalf("failure event = %+v", event)
	}
}

func TestMQTTRoutesCommands(t *testing.T) {
	client := &fakeMQTTClient{}
	m := newMQTTService(client, "wheelchair", "s1", newFakeClock(), zap.NewNop())

	var mu sync.Mutex
	var got []models.Command
	err := m.SubscribeCommands(func(_ context.Context, cmd models.Command) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cmd)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(client.subscribed) != 1 || client.subscribed[0] != "wheelchair/s1/commands" {
		t.Fatalf("subscribed = %v", client.subscribed)
	}

	m.receiveCommand([]byte(`not json`))
	m.receiveCommand([]byte(`{"direction": "forward"}`))
	m.receiveCommand([]byte(`{"kind": "direction", "direction": "forward"}`))
	m.receiveCommand([]byte(`{"kind": "speed", "speed": 70}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "two commands")

	mu.Lock()
	defer mu.Unlock()
	if got[0].Kind != models.CommandDirection || got[0].Direction != models.DirectionForward {
		t.Fatalf("first command = %+v", got[0])
	}
	if got[1].Kind != models.CommandSpeed || got[1].Speed == nil || *got[1].Speed != 70 {
		t.Fatalf("second command = %+v", got[1])
	}
}
