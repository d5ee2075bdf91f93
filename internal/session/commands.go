package session

import (
	"github.com/muurk/rmlink/internal/protocol"
)

// Authenticate sends the handshake. When the device replies the session key
// and id are replaced and the session becomes Ready. A failed handshake
// returns the session to Unauthenticated.
func (s *Session) Authenticate() (*Request, error) {
	s.mu.Lock()
	s.state = Authenticating
	s.mu.Unlock()

	req, err := s.send(protocol.CommandAuth, protocol.AuthPayload(), func(_ *Reply, err error) {
		if err != nil {
			s.resetState()
		}
	})
	if err != nil {
		s.resetState()
		return nil, err
	}
	return req, nil
}

func (s *Session) resetState() {
	s.mu.Lock()
	if s.state == Authenticating {
		s.state = Unauthenticated
	}
	s.mu.Unlock()
}

// SendData transmits an IR or RF code
func (s *Session) SendData(code []byte) (*Request, error) {
	return s.send(protocol.CommandRequest, protocol.BuildSendData(s.info.Headers.CodeSend, code), nil)
}

// CheckData asks for the last captured code
func (s *Session) CheckData() (*Request, error) {
	return s.query(protocol.SubCheckData)
}

// EnterLearning puts the device in IR learning mode
func (s *Session) EnterLearning() (*Request, error) {
	return s.query(protocol.SubEnterLearning)
}

// CancelLearn leaves learning mode
func (s *Session) CancelLearn() (*Request, error) {
	return s.query(protocol.SubCancelLearn)
}

// CheckTemperature queries the sensor. The reply event carries the reading.
func (s *Session) CheckTemperature() (*Request, error) {
	return s.query(protocol.SensorsSubCommand(s.info.RM4()))
}

// CheckHumidity queries the sensor. Devices report humidity in the same
// reply as temperature, so this sends the same sub-command.
func (s *Session) CheckHumidity() (*Request, error) {
	return s.query(protocol.SensorsSubCommand(s.info.RM4()))
}

func (s *Session) query(sub byte) (*Request, error) {
	return s.send(protocol.CommandRequest, protocol.BuildQuery(s.info.Headers.Request, sub), nil)
}

// RF is the RF command set of an RF-capable session
type RF struct {
	s *Session
}

// RF returns the RF command set, or ErrNotRFCapable
func (s *Session) RF() (*RF, error) {
	if !s.info.RFCapable() {
		return nil, ErrNotRFCapable
	}
	return &RF{s: s}, nil
}

// EnterRFSweep starts scanning for an RF frequency
func (rf *RF) EnterRFSweep() (*Request, error) {
	return rf.s.query(protocol.SubRFSweep)
}

// CheckRFData asks whether the sweep found a frequency
func (rf *RF) CheckRFData() (*Request, error) {
	return rf.s.query(protocol.SubCheckRF)
}

// CheckRFData2 asks for the second stage sweep result
func (rf *RF) CheckRFData2() (*Request, error) {
	return rf.s.query(protocol.SubCheckRF2)
}
