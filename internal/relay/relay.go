// Package relay forwards door changes from the event bus to NATS.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"doorbot/internal/eventbus"
	logx "doorbot/pkg/logx"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "doorbot.door.changed"

type Config struct {
	URL     string
	Subject string
	// Name is the NATS client connection name.
	Name string
}

// Publisher is the subset of *nats.Conn the relay uses.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

type Relay struct {
	pub     Publisher
	subject string
	log     logx.Logger
}

func New(pub Publisher, subject string, log logx.Logger) *Relay {
	if log.IsZero() {
		log = logx.Nop()
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &Relay{pub: pub, subject: subject, log: log.With(logx.String("comp", "relay"))}
}

// Connect dials NATS. The client keeps reconnecting forever and tolerates
// the server being down at start.
func Connect(cfg Config, log logx.Logger) (*nats.Conn, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("relay: nats url is empty")
	}
	name := cfg.Name
	if name == "" {
		name = "doorbot"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: connect %s: %w", url, err)
	}
	return nc, nil
}

// Publish sends one change as JSON {status, previous, at}.
func (r *Relay) Publish(ev eventbus.DoorChanged) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(r.subject)
	msg.Data = payload
	msg.Header.Set("Content-Type", "application/json")
	return r.pub.PublishMsg(msg)
}

// Run relays door.changed events read from events until ctx is done or
// events is closed. Subscribe before starting anything that publishes.
// Publish errors are logged; the change is not retried.
func (r *Relay) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeDoorChanged {
				continue
			}
			ev, ok := e.Data.(eventbus.DoorChanged)
			if !ok {
				continue
			}
			// The first observation after start has nothing to compare to.
			if ev.Previous == "" {
				continue
			}
			if err := r.Publish(ev); err != nil {
				r.log.Warn("relay publish failed", logx.String("subject", r.subject), logx.Err(err))
				continue
			}
			r.log.Debug("door change relayed", logx.String("subject", r.subject), logx.String("status", ev.Status))
		}
	}
}
