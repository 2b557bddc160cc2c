package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"tracker-service/internal/command"
)

// DefaultInboxSize bounds commands held between Receive calls.
const DefaultInboxSize = 16

// Broker publishes over a TCP connection to the broker using paho. It is
// used on nodes where the modem provides an IP bearer.
type Broker struct {
	client paho.Client
	cfg    Config
	logger func(string, ...interface{})

	mu    sync.Mutex
	inbox []command.Command
	max   int
}

func NewBroker(cfg Config, logger func(string, ...interface{})) *Broker {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	b := &Broker{cfg: cfg, logger: logger, max: DefaultInboxSize}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log("Connection lost: %v", err)
	})

	b.client = paho.NewClient(opts)
	return b
}

func (b *Broker) log(format string, v ...interface{}) {
	b.logger("[MQTT] "+format, v...)
}

// onConnect subscribes on every (re)connect since the session is clean.
func (b *Broker) onConnect(c paho.Client) {
	b.log("Connected to %s:%d", b.cfg.Host, b.cfg.Port)
	token := c.Subscribe(b.cfg.CommandTopic, QoS, b.onMessage)
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		b.log("Subscribe to %s timed out", b.cfg.CommandTopic)
		return
	}
	if err := token.Error(); err != nil {
		b.log("Failed to subscribe to %s: %v", b.cfg.CommandTopic, err)
		return
	}
	b.log("Subscribed to %s", b.cfg.CommandTopic)
}

// onMessage runs on a paho goroutine and only queues the command.
func (b *Broker) onMessage(_ paho.Client, msg paho.Message) {
	b.enqueue(command.FromMessage(msg.Topic(), msg.Payload()))
}

func (b *Broker) enqueue(cmd command.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inbox) >= b.max {
		b.log("Command inbox full, dropping %q", b.inbox[0].Raw)
		b.inbox = b.inbox[1:]
	}
	b.inbox = append(b.inbox, cmd)
}

func (b *Broker) Connect(ctx context.Context) error {
	return wait(ctx, b.client.Connect(), b.cfg.ConnectTimeout, "connect")
}

func (b *Broker) Publish(ctx context.Context, topic, payload string) error {
	token := b.client.Publish(topic, QoS, Retain, payload)
	return wait(ctx, token, b.cfg.PublishTimeout, "publish to "+topic)
}

func (b *Broker) Receive(ctx context.Context) ([]command.Command, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmds := b.inbox
	b.inbox = nil
	return cmds, nil
}

func (b *Broker) Reconnect(ctx context.Context) error {
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return b.Connect(ctx)
}

func (b *Broker) Close() error {
	b.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, token paho.Token, fallback time.Duration, what string) error {
	timeout := timeoutFor(ctx, fallback)
	if !token.WaitTimeout(timeout) {
		return errors.Errorf("%s: timed out after %v", what, timeout)
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}
