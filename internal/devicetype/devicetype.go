package devicetype

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for devices that answer discovery but cannot blast codes
	ErrUnsupported = errors.New("unsupported device type")

	// ErrUnknown is returned for codes that appear in none of the tables
	ErrUnknown = errors.New("unknown device type")
)

// Capability is the classification tag of a device type code
type Capability int

const (
	// Unknown codes are in no table; no session may be built for them
	Unknown Capability = iota
	// Unsupported codes are known non-blaster products
	Unsupported
	// RM is a legacy IR-only blaster
	RM
	// RMPlus is a legacy blaster with RF support
	RMPlus
	// RM4 is a newer generation IR-only blaster
	RM4
	// RM4Plus is a newer generation blaster with RF support
	RM4Plus
)

// String returns a short tag for the capability
func (c Capability) String() string {
	switch c {
	case Unknown:
		return "unknown"
	case Unsupported:
		return "unsupported"
	case RM:
		return "plain-rm"
	case RMPlus:
		return "rm-plus"
	case RM4:
		return "rm4"
	case RM4Plus:
		return "rm4-plus"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// Supported reports whether a session may be constructed
func (c Capability) Supported() bool {
	return c == RM || c == RMPlus || c == RM4 || c == RM4Plus
}

// RFCapable reports whether the RF sweep command set is available
func (c Capability) RFCapable() bool {
	return c == RMPlus || c == RM4Plus
}

// RM4 reports whether the device belongs to the rm4 generation
func (c Capability) RM4() bool {
	return c == RM4 || c == RM4Plus
}

// Headers are the sub-command prefixes a device generation expects
type Headers struct {
	// Request prefixes query sub-commands (check data, learn, temperature, RF)
	Request []byte
	// CodeSend prefixes the send-data sub-command
	CodeSend []byte
}

// Info is the classification result for a device type code
type Info struct {
	Code       uint16
	Model      string
	Capability Capability
	Headers    Headers
}

// String returns a human-readable description
func (i Info) String() string {
	model := i.Model
	if model == "" {
		model = "unknown model"
	}
	return fmt.Sprintf("%s (0x%04x, %s)", model, i.Code, i.Capability)
}

// RFCapable reports whether the device supports the RF command set
func (i Info) RFCapable() bool {
	return i.Capability.RFCapable()
}

// RM4 reports whether the device belongs to the rm4 generation
func (i Info) RM4() bool {
	return i.Capability.RM4()
}

// Classify maps a device type code to its capability, model and header variant.
//
// Rules are applied in order: the unsupported table and the OEM range first,
// then the four blaster tables, and finally Unknown.
func Classify(code uint16) Info {
	info := Info{Code: code}

	if model, ok := unsupportedTypes[code]; ok {
		info.Model = model
		info.Capability = Unsupported
		return info
	}
	if code >= oemRangeStart && code <= oemRangeEnd {
		info.Model = "OEM Branded SPMini2"
		info.Capability = Unsupported
		return info
	}

	switch {
	case rmTypes[code] != "":
		info.Model, info.Capability = rmTypes[code], RM
	case rmPlusTypes[code] != "":
		info.Model, info.Capability = rmPlusTypes[code], RMPlus
	case rm4Types[code] != "":
		info.Model, info.Capability = rm4Types[code], RM4
	case rm4PlusTypes[code] != "":
		info.Model, info.Capability = rm4PlusTypes[code], RM4Plus
	default:
		info.Capability = Unknown
		return info
	}

	info.Headers = HeadersFor(code)
	return info
}

// HeadersFor returns the sub-command prefixes for a device type code.
// Codes outside the rm4 tables get empty prefixes except for the
// codeSendExceptions, which keep their own pair.
func HeadersFor(code uint16) Headers {
	if codeSendExceptions[code] {
		return Headers{
			Request:  []byte{0x04, 0x00},
			CodeSend: []byte{0xd0, 0x00},
		}
	}
	if rm4Types[code] != "" || rm4PlusTypes[code] != "" {
		return Headers{
			Request:  []byte{0x04, 0x00},
			CodeSend: []byte{0xda, 0x00},
		}
	}
	return Headers{
		Request:  []byte{},
		CodeSend: []byte{},
	}
}

// Validate classifies a code and returns an error when no session may be
// built for it. The error wraps ErrUnsupported or ErrUnknown.
func Validate(code uint16) (Info, error) {
	info := Classify(code)
	switch info.Capability {
	case Unsupported:
		return info, fmt.Errorf("%w: 0x%04x (%s)", ErrUnsupported, code, info.Model)
	case Unknown:
		return info, fmt.Errorf("%w: 0x%04x", ErrUnknown, code)
	}
	return info, nil
}

// Lookup returns the model name for a code from any table
func Lookup(code uint16) (string, bool) {
	for _, table := range []map[uint16]string{rmTypes, rmPlusTypes, rm4Types, rm4PlusTypes, unsupportedTypes} {
		if model, ok := table[code]; ok {
			return model, true
		}
	}
	return "", false
}
