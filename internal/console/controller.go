package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/session"
)

// ErrNoSensor is returned when a sensor reply carries no reading
var ErrNoSensor = errors.New("device returned no sensor data")

// Controller performs device operations for the remote screen
type Controller interface {
	// Send transmits a code and returns the acknowledgement round trip
	Send(ctx context.Context, code []byte) (time.Duration, error)

	// Temperature reads the built-in sensor
	Temperature(ctx context.Context) (*protocol.TemperatureEvent, error)

	Close() error
}

// ScanFunc discovers devices on the network
type ScanFunc func(ctx context.Context) ([]*discovery.Device, error)

// ConnectFunc authenticates with a device and returns its controller
type ConnectFunc func(ctx context.Context, d *discovery.Device) (Controller, error)

// Config wires the console to the network and the code library
type Config struct {
	Registry *config.Registry
	Scan     ScanFunc
	Connect  ConnectFunc

	// ScanWindow drives the discovery progress bar
	ScanWindow time.Duration

	// RequestTimeout bounds a single send or sensor read
	RequestTimeout time.Duration
}

// NewConfig returns a console configuration that scans and connects with the
// registry preferences. Devices defined in the registry are listed alongside
// the discovered ones.
func NewConfig(registry *config.Registry) Config {
	prefs := registry.Preferences
	opts := []session.Option{
		session.WithTimeout(prefs.RequestDuration()),
		session.WithInitialCounter(prefs.InitialCounter),
	}

	return Config{
		Registry:       registry,
		ScanWindow:     prefs.DiscoverDuration(),
		RequestTimeout: prefs.RequestDuration(),
		Scan: func(ctx context.Context) ([]*discovery.Device, error) {
			table := discovery.NewTable()
			for key, entry := range registry.Devices {
				mac, err := protocol.ParseMAC(key)
				if err != nil {
					continue
				}
				code, err := entry.TypeCode()
				if err != nil {
					continue
				}
				if d, err := discovery.NewDevice(entry.Host, entry.Port, mac, code); err == nil {
					table.Add(d)
				}
			}

			scanner := discovery.NewScanner()
			scanner.Timeout = prefs.DiscoverDuration()
			if err := scanner.Scan(ctx, table); err != nil && table.Len() == 0 {
				return nil, err
			}
			return table.Devices(), nil
		},
		Connect: func(ctx context.Context, d *discovery.Device) (Controller, error) {
			if err := discovery.Connect(ctx, d, opts...); err != nil {
				return nil, err
			}
			waitCtx, cancel := context.WithTimeout(ctx, prefs.RequestDuration()+time.Second)
			defer cancel()
			if _, err := d.Auth.Wait(waitCtx); err != nil {
				d.Session.Close()
				d.Session, d.Auth = nil, nil
				return nil, fmt.Errorf("authentication with %s failed: %w", d.Addr(), err)
			}
			return NewSessionController(d.Session), nil
		},
	}
}

// SessionController drives an authenticated session. Sends go through a
// queue so repeated presses reach the device in order.
type SessionController struct {
	session *session.Session
	queue   *session.Queue
}

// NewSessionController wraps an authenticated session
func NewSessionController(s *session.Session) *SessionController {
	return &SessionController{session: s, queue: s.NewQueue()}
}

// Send queues a code and waits for the device to acknowledge it
func (c *SessionController) Send(ctx context.Context, code []byte) (time.Duration, error) {
	ch, err := c.queue.Enqueue(code)
	if err != nil {
		return 0, err
	}
	select {
	case r := <-ch:
		if r.Err != nil {
			return 0, r.Err
		}
		return r.Reply.RTT, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Temperature queries the sensors and returns the typed reading
func (c *SessionController) Temperature(ctx context.Context) (*protocol.TemperatureEvent, error) {
	req, err := c.session.CheckTemperature()
	if err != nil {
		return nil, err
	}
	reply, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}
	reading, ok := reply.Event.(*protocol.TemperatureEvent)
	if !ok {
		return nil, ErrNoSensor
	}
	return reading, nil
}

// Close stops the queue and the session
func (c *SessionController) Close() error {
	c.queue.Close()
	return c.session.Close()
}
