package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/rmlink/internal/discovery"
	"github.com/muurk/rmlink/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrUnknownDevice  = errors.New("unknown device")
	ErrDeviceNotReady = errors.New("device not ready")
	ErrUnknownRequest = errors.New("unknown request type")
)

// handle runs one client request. Replies are sent asynchronously so a slow
// device does not block the client's read loop.
func (s *Server) handle(c *client, req Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.Do(context.Background(), req)
		s.hub.reply(c, res)
	}()
}

// Do executes a request and returns its result
func (s *Server) Do(ctx context.Context, req Request) *Result {
	res := &Result{Type: TypeResult, ID: req.ID}

	var err error
	switch req.Type {
	case RequestDevices:
		res.Devices = s.DeviceInfos()
	case RequestSend:
		err = s.send(ctx, res, req.Device, req.Data)
	case RequestSendNamed:
		err = s.sendNamed(ctx, res, req)
	case RequestTemperature:
		err = s.temperature(ctx, res, req.Device)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}

	if err != nil {
		res.Error = err.Error()
		logging.Debug("Request failed",
			zap.String("id", req.ID),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		return res
	}
	res.OK = true
	return res
}

// DeviceInfos lists every device known to the bridge, ordered by MAC
func (s *Server) DeviceInfos() []DeviceInfo {
	devices := s.table.Devices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, deviceInfo(d, s.nickname(d)))
	}
	return infos
}

// resolve finds a device by MAC or configured nickname. An empty reference
// selects the only device when exactly one is known.
func (s *Server) resolve(ref string) (*discovery.Device, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if devices := s.table.Devices(); len(devices) == 1 {
			return devices[0], nil
		}
		return nil, fmt.Errorf("%w: no device given", ErrUnknownDevice)
	}
	if d, ok := s.table.Get(ref); ok {
		return d, nil
	}
	if mac, ok := s.config.Registry.DeviceMAC(ref); ok {
		if d, ok := s.table.Get(mac.Hex()); ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, ref)
}

func (s *Server) send(ctx context.Context, res *Result, ref, data string) error {
	code, err := hex.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("invalid code data: %w", err)
	}
	if len(code) == 0 {
		return errors.New("invalid code data: empty")
	}

	d, err := s.resolve(ref)
	if err != nil {
		return err
	}
	q := s.queue(d)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotReady, d.MAC)
	}

	ch, err := q.Enqueue(code)
	if err != nil {
		return err
	}
	select {
	case r := <-ch:
		if r.Err != nil {
			return r.Err
		}
		res.RTT = r.Reply.RTT.String()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) sendNamed(ctx context.Context, res *Result, req Request) error {
	code := s.config.Registry.GetCode(req.Name)
	if code == nil {
		return fmt.Errorf("unknown code %q", req.Name)
	}
	ref := req.Device
	if ref == "" {
		ref = code.Device
	}
	return s.send(ctx, res, ref, code.Data)
}

func (s *Server) temperature(ctx context.Context, res *Result, ref string) error {
	d, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if d.Session == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotReady, d.MAC)
	}

	r, err := d.Session.CheckTemperature()
	if err != nil {
		return err
	}
	reply, err := r.Wait(ctx)
	if err != nil {
		return err
	}
	res.RTT = reply.RTT.String()
	if reply.Event != nil {
		res.Event = eventFor(d.MAC, reply.Event)
	}
	return nil
}
