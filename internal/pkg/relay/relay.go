// Package relay bridges the device list onto MQTT. Every merged snapshot is
// published for companion consumers; inbound topics accept list pushes and
// fan commands.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
)

type listApplier interface {
	ApplyRelayList(devices []model.Device)
}

type commandSubmitter interface {
	Submit(cmd model.Command) error
}

type Relay struct {
	client paho_mqtt.Client
	prefix string
	logger *zap.Logger
}

func New(client paho_mqtt.Client, cfg *config.MqttConfig) *Relay {
	return &Relay{
		client: client,
		prefix: cfg.TopicPrefix,
		logger: zap.L(),
	}
}

func (r *Relay) Connect() error {
	token := r.client.Connect()
	if token.WaitTimeout(connectTimeout) {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

// Send publishes the full list retained on <prefix>/devices, plus one
// retained per-device state topic keyed by a slug of the device name.
func (r *Relay) Send(ctx context.Context, devices []model.Device) error {
	payload, err := json.Marshal(devices)
	if err != nil {
		return err
	}
	if err := r.publish(ctx, r.prefix+"/devices", payload); err != nil {
		return err
	}

	for _, device := range devices {
		body, err := json.Marshal(device)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/device/%s/state", r.prefix, deviceSlug(device))
		if err := r.publish(ctx, topic, body); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe wires the inbound topics: <prefix>/devices/set replaces the list
// the same way a cloud refresh does, <prefix>/command feeds the dispatcher.
// Malformed payloads are logged and dropped.
func (r *Relay) Subscribe(applier listApplier, submitter commandSubmitter) error {
	listToken := r.client.Subscribe(r.prefix+"/devices/set", 1, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		var devices []model.Device
		if err := json.Unmarshal(msg.Payload(), &devices); err != nil {
			r.logger.Warn("dropping malformed relay list", zap.Error(err))
			return
		}
		applier.ApplyRelayList(devices)
	})
	if err := waitToken(listToken, connectTimeout); err != nil {
		return fmt.Errorf("subscribe devices/set: %w", err)
	}

	cmdToken := r.client.Subscribe(r.prefix+"/command", 1, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		var req model.CommandRequest
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			r.logger.Warn("dropping malformed relay command", zap.Error(err))
			return
		}
		cmd, err := req.Command()
		if err != nil {
			r.logger.Warn("dropping invalid relay command", zap.Error(err))
			return
		}
		if err := submitter.Submit(cmd); err != nil {
			r.logger.Warn("relay command rejected", zap.Error(err))
		}
	})
	if err := waitToken(cmdToken, connectTimeout); err != nil {
		return fmt.Errorf("subscribe command: %w", err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, topic string, payload []byte) error {
	token := r.client.Publish(topic, 0, true, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish %s: timed out", topic)
	}
}

func waitToken(token paho_mqtt.Token, timeout time.Duration) error {
	if token.WaitTimeout(timeout) {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("timed out")
}

func deviceSlug(device model.Device) string {
	if device.Name == "" {
		return slug.Make(device.DeviceID)
	}
	return slug.Make(device.Name)
}
