package protocol

import (
	"encoding/hex"
	"fmt"
)

// Payload tags, the first byte of a header-stripped reply
const (
	TagTemperature         = 0x01
	TagCheckData           = 0x04
	TagRFFoundRM4          = 0x09
	TagTemperatureHumidity = 0x0a
	TagRFFoundLegacy       = 0x1a
	TagRFSweep2            = 0x1b
	TagRawCode             = 0x26
	TagLearnt              = 0x5e
	TagRawCodeA9           = 0xa9
	TagRawCodeB0           = 0xb0
	TagRawCodeB1           = 0xb1
	TagRawCodeB2           = 0xb2
)

// Event kinds
const (
	KindTemperature = "temperature"
	KindRawData     = "raw_data"
	KindRFFound     = "rf_found"
	KindRFSweep     = "rf_sweep"
)

// Event is a typed result decoded from a reply payload
type Event interface {
	Type() byte // Payload tag the event was decoded from
	Kind() string
	String() string
}

// TemperatureEvent carries a sensor reading. Humidity is only set for
// TagTemperatureHumidity payloads.
type TemperatureEvent struct {
	Tag         byte
	Celsius     float64
	Humidity    float64
	HasHumidity bool
}

func (e *TemperatureEvent) Type() byte   { return e.Tag }
func (e *TemperatureEvent) Kind() string { return KindTemperature }

func (e *TemperatureEvent) String() string {
	if e.HasHumidity {
		return fmt.Sprintf("Temperature{%.2f°C, humidity=%.2f%%}", e.Celsius, e.Humidity)
	}
	return fmt.Sprintf("Temperature{%.1f°C}", e.Celsius)
}

// RawDataEvent carries a captured or learnt IR/RF code
type RawDataEvent struct {
	Tag  byte
	Data []byte
}

func (e *RawDataEvent) Type() byte   { return e.Tag }
func (e *RawDataEvent) Kind() string { return KindRawData }

func (e *RawDataEvent) String() string {
	return fmt.Sprintf("RawData{tag=0x%02x, len=%d, data=%s}", e.Tag, len(e.Data), hex.EncodeToString(e.Data))
}

// RFFoundEvent reports that an RF sweep locked onto a frequency
type RFFoundEvent struct {
	Tag  byte
	Flag byte
}

func (e *RFFoundEvent) Type() byte   { return e.Tag }
func (e *RFFoundEvent) Kind() string { return KindRFFound }

func (e *RFFoundEvent) String() string {
	return fmt.Sprintf("RFFound{tag=0x%02x, flag=%d}", e.Tag, e.Flag)
}

// RFSweepEvent is the result of the second RF check
type RFSweepEvent struct {
	Tag  byte
	Flag byte
}

func (e *RFSweepEvent) Type() byte   { return e.Tag }
func (e *RFSweepEvent) Kind() string { return KindRFSweep }

func (e *RFSweepEvent) String() string {
	return fmt.Sprintf("RFSweep{flag=%d}", e.Flag)
}

// Dispatch decodes a header-stripped reply payload into an event.
// rm4 selects the newer generation's interpretation of TagRFSweep2.
// Unknown tags and payloads too short for their tag return nil.
func Dispatch(payload []byte, rm4 bool) Event {
	if len(payload) == 0 {
		return nil
	}

	tag := payload[0]
	switch tag {
	case TagTemperature:
		if len(payload) < 6 {
			return nil
		}
		return &TemperatureEvent{
			Tag:     tag,
			Celsius: (float64(payload[4])*10 + float64(payload[5])) / 10.0,
		}

	case TagTemperatureHumidity:
		if len(payload) < 10 {
			return nil
		}
		return &TemperatureEvent{
			Tag:         tag,
			Celsius:     (float64(payload[6])*100 + float64(payload[7])) / 100.0,
			Humidity:    (float64(payload[8])*100 + float64(payload[9])) / 100.0,
			HasHumidity: true,
		}

	case TagCheckData:
		if len(payload) < 4 {
			return nil
		}
		return &RawDataEvent{Tag: tag, Data: clone(payload[4:])}

	case TagLearnt:
		if len(payload) < 6 {
			return nil
		}
		return &RawDataEvent{Tag: tag, Data: clone(payload[6:])}

	case TagRFFoundRM4:
		if len(payload) < 7 || payload[6] != 1 {
			return nil
		}
		return &RFFoundEvent{Tag: tag, Flag: payload[6]}

	case TagRFFoundLegacy:
		if len(payload) < 5 || payload[4] != 1 {
			return nil
		}
		return &RFFoundEvent{Tag: tag, Flag: payload[4]}

	case TagRFSweep2:
		// Legacy devices signal a found frequency differently; rm4 always reports.
		if len(payload) < 5 || (payload[4] != 1 && !rm4) {
			return nil
		}
		return &RFSweepEvent{Tag: tag, Flag: payload[4]}

	case TagRawCode, TagRawCodeA9, TagRawCodeB0, TagRawCodeB1, TagRawCodeB2:
		return &RawDataEvent{Tag: tag, Data: clone(payload)}
	}

	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
