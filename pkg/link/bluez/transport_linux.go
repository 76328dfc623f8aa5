// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/eagletech/eaglelink/pkg/link"
)

const unknownObject = "org.freedesktop.DBus.Error.UnknownObject"

// Transport connects to one peripheral through a BlueZ adapter.
type Transport struct {
	cfg     Config
	mac     bluetooth.MAC
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	enableMu sync.Mutex
	enabled  bool
}

// device is the part of bluetooth.Device the transport uses.
type device interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]bluetooth.DeviceService, error)
	Disconnect() error
}

// New returns a transport for cfg.Address. The adapter is enabled lazily on
// the first Dial so a missing controller shows up as a retried connect
// failure rather than a startup error.
func New(cfg Config) (*Transport, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	mac, err := bluetooth.ParseMAC(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return &Transport{
		cfg:     cfg,
		mac:     mac,
		adapter: bluetooth.NewAdapter(cfg.Adapter),
		logger:  cfg.Logger.With("component", "bluez", "adapter", cfg.Adapter),
	}, nil
}

// Address returns the peer MAC address.
func (t *Transport) Address() string {
	return t.cfg.Address
}

// IsConnected asks BlueZ whether it holds a connection to the peer.
// An unknown device is reported as not connected.
func (t *Transport) IsConnected(ctx context.Context) (bool, error) {
	obj, err := t.deviceObject()
	if err != nil {
		return false, err
	}
	return connectedProperty(obj)
}

// ForceDisconnect asks BlueZ to drop any connection to the peer.
func (t *Transport) ForceDisconnect(ctx context.Context) error {
	obj, err := t.deviceObject()
	if err != nil {
		return err
	}
	if call := obj.CallWithContext(ctx, disconnectCall, 0); call.Err != nil {
		return fmt.Errorf("bluez: disconnect %s: %w", t.cfg.Address, call.Err)
	}
	return nil
}

// Dial enables the adapter if needed and connects. BlueZ connects are not
// cancellable, so when ctx ends first the late connection is torn down in
// the background.
func (t *Transport) Dial(ctx context.Context) (link.Peripheral, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	type result struct {
		dev device
		err error
	}
	done := make(chan result, 1)
	go func() {
		dev, err := t.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: t.mac}}, params)
		done <- result{dev: dev, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("bluez: connect %s: %w", t.cfg.Address, r.err)
		}
		return t.newPeripheral(r.dev), nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

func (t *Transport) enable() error {
	t.enableMu.Lock()
	defer t.enableMu.Unlock()
	if t.enabled {
		return nil
	}
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAdapter, t.cfg.Adapter, err)
	}
	t.enabled = true
	return nil
}

func (t *Transport) deviceObject() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: system bus: %w", err)
	}
	return conn.Object(bluezService, dbus.ObjectPath(devicePath(t.cfg.Adapter, t.cfg.Address))), nil
}

func connectedProperty(obj dbus.BusObject) (bool, error) {
	v, err := obj.GetProperty(connectedProp)
	if err != nil {
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && dbusErr.Name == unknownObject {
			return false, nil
		}
		return false, fmt.Errorf("bluez: read Connected: %w", err)
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: Connected has type %T", v.Value())
	}
	return connected, nil
}

// peripheral is a connected BlueZ device.
type peripheral struct {
	t    *Transport
	dev  device
	drop chan struct{}
	stop chan struct{}
	once sync.Once
}

func (t *Transport) newPeripheral(dev device) *peripheral {
	p := &peripheral{
		t:    t,
		dev:  dev,
		drop: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go p.watch()
	return p
}

// watch closes drop once BlueZ reports the device disconnected.
func (p *peripheral) watch() {
	ticker := time.NewTicker(p.t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			obj, err := p.t.deviceObject()
			if err != nil {
				continue
			}
			connected, err := connectedProperty(obj)
			if err != nil {
				p.t.logger.Debug("connection poll failed", "error", err)
				continue
			}
			if !connected {
				close(p.drop)
				return
			}
		}
	}
}

func (p *peripheral) Characteristics(ctx context.Context) ([]link.Characteristic, error) {
	type result struct {
		chars []link.Characteristic
		err   error
	}
	done := make(chan result, 1)
	go func() {
		chars, err := p.discover()
		done <- result{chars: chars, err: err}
	}()

	select {
	case r := <-done:
		return r.chars, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *peripheral) discover() ([]link.Characteristic, error) {
	services, err := p.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("bluez: discover services: %w", err)
	}

	var out []link.Characteristic
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("bluez: discover characteristics: %w", err)
		}
		for i := range chars {
			out = append(out, &characteristic{c: chars[i]})
		}
	}
	return out, nil
}

func (p *peripheral) Disconnected() <-chan struct{} {
	return p.drop
}

func (p *peripheral) Close() error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		err = p.dev.Disconnect()
	})
	return err
}

// characteristic adapts bluetooth.DeviceCharacteristic.
type characteristic struct {
	c bluetooth.DeviceCharacteristic
}

func (c *characteristic) UUID() string {
	return c.c.UUID().String()
}

func (c *characteristic) WriteWithoutResponse(ctx context.Context, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := c.c.WriteWithoutResponse(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *characteristic) Subscribe(fn func([]byte)) error {
	return c.c.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		fn(data)
	})
}

func (c *characteristic) MaxWriteSize() (int, bool) {
	mtu, err := c.c.GetMTU()
	if err != nil || int(mtu) <= attOverhead {
		return 0, false
	}
	return int(mtu) - attOverhead, true
}

var _ link.Transport = (*Transport)(nil)
