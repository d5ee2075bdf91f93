package session

import (
	"context"
	"errors"
	"time"

	"github.com/muurk/rmlink/internal/logging"
	"github.com/muurk/rmlink/internal/protocol"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often learning helpers poll the device
const DefaultPollInterval = time.Second

// LearnStage reports the progress of a learning helper
type LearnStage string

const (
	StageLearning       LearnStage = "learning"
	StageSweeping       LearnStage = "sweeping"
	StageFrequencyFound LearnStage = "frequency found"
	StageCapturing      LearnStage = "capturing"
	StageCaptured       LearnStage = "captured"
)

// ProgressFunc receives learning stage changes. It may be nil.
type ProgressFunc func(LearnStage)

// Learn enters IR learning mode and polls CheckData until the device returns
// a captured code or ctx ends. On ctx expiry learning is cancelled on the
// device.
func (s *Session) Learn(ctx context.Context, interval time.Duration, progress ProgressFunc) ([]byte, error) {
	if err := s.do(ctx, s.EnterLearning); err != nil {
		return nil, err
	}
	report(progress, StageLearning)

	code, err := s.pollCode(ctx, interval)
	if err != nil {
		s.cancelLearn()
		return nil, err
	}
	report(progress, StageCaptured)
	return code, nil
}

// LearnRF runs the RF capture sequence: sweep until a frequency is found,
// read the second stage result, then poll for the captured code.
func (s *Session) LearnRF(ctx context.Context, interval time.Duration, progress ProgressFunc) ([]byte, error) {
	rf, err := s.RF()
	if err != nil {
		return nil, err
	}

	if err := s.do(ctx, rf.EnterRFSweep); err != nil {
		return nil, err
	}
	report(progress, StageSweeping)

	err = s.poll(ctx, interval, rf.CheckRFData, func(reply *Reply) bool {
		_, ok := reply.Event.(*protocol.RFFoundEvent)
		return ok
	})
	if err != nil {
		s.cancelLearn()
		return nil, err
	}
	report(progress, StageFrequencyFound)

	err = s.poll(ctx, interval, rf.CheckRFData2, func(reply *Reply) bool {
		_, ok := reply.Event.(*protocol.RFSweepEvent)
		return ok
	})
	if err != nil {
		s.cancelLearn()
		return nil, err
	}
	report(progress, StageCapturing)

	code, err := s.pollCode(ctx, interval)
	if err != nil {
		s.cancelLearn()
		return nil, err
	}
	report(progress, StageCaptured)
	return code, nil
}

func (s *Session) pollCode(ctx context.Context, interval time.Duration) ([]byte, error) {
	var code []byte
	err := s.poll(ctx, interval, s.CheckData, func(reply *Reply) bool {
		raw, ok := reply.Event.(*protocol.RawDataEvent)
		if !ok || len(raw.Data) == 0 {
			return false
		}
		code = raw.Data
		return true
	})
	return code, err
}

// poll sends cmd every interval until accept returns true. Device errors and
// timeouts mean "not yet" and keep the loop going.
func (s *Session) poll(ctx context.Context, interval time.Duration, cmd func() (*Request, error), accept func(*Reply) bool) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		req, err := cmd()
		if err != nil {
			if errors.Is(err, ErrRequestIDInUse) {
				continue
			}
			return err
		}
		reply, err := req.Wait(ctx)
		switch {
		case err == nil:
			if accept(reply) {
				return nil
			}
		case errors.Is(err, ErrRequestTimeout):
		case isDeviceError(err):
		default:
			return err
		}
	}
}

// do runs a single command and waits for it
func (s *Session) do(ctx context.Context, cmd func() (*Request, error)) error {
	req, err := cmd()
	if err != nil {
		return err
	}
	_, err = req.Wait(ctx)
	return err
}

func (s *Session) cancelLearn() {
	if _, err := s.CancelLearn(); err != nil {
		logging.Debug("Cancel learn not sent", zap.String("mac", s.mac.Hex()), zap.Error(err))
	}
}

func isDeviceError(err error) bool {
	var devErr *protocol.DeviceError
	return errors.As(err, &devErr)
}

func report(progress ProgressFunc, stage LearnStage) {
	if progress != nil {
		progress(stage)
	}
}
