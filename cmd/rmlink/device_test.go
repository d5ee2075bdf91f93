package main

import (
	"bytes"
	"testing"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/protocol"
)

func TestParseTypeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0x2787", 0x2787, false},
		{"0X5213", 0x5213, false},
		{"2787", 0x2787, false},
		{"#10119", 0x2787, false},
		{"", 0, true},
		{"0x12345", 0, true},
		{"rm4", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTypeCode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTypeCode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseTypeCode(%q) = 0x%04x, want 0x%04x", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfiguredDevice(t *testing.T) {
	mac := protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1}
	registry := config.NewRegistry()
	registry.SetDevice(mac, "192.168.1.50", 0, 0x2787)
	if err := registry.SetDeviceNickname(mac, "Living Room"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		ref    string
		wantOK bool
	}{
		{"only device", "", true},
		{"colon mac", "ec:0b:ae:8c:43:f1", true},
		{"nickname", "living room", true},
		{"unknown mac", "24:df:a7:01:02:03", false},
		{"unknown name", "kitchen", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, nickname, ok, err := configuredDevice(registry, tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if d.MAC != mac || d.Port != 80 || d.Addr().String() != "192.168.1.50:80" {
				t.Errorf("device = %+v", d)
			}
			if nickname != "Living Room" {
				t.Errorf("nickname = %q", nickname)
			}
		})
	}

	t.Run("unsupported type", func(t *testing.T) {
		registry.Devices[mac.Hex()].Type = "0x2711"
		_, _, ok, err := configuredDevice(registry, "living room")
		if !ok || err == nil {
			t.Errorf("ok = %v, err = %v, want a classification error", ok, err)
		}
	})
}

func TestResolveCode(t *testing.T) {
	mac := protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1}
	registry := config.NewRegistry()
	registry.SaveCode("tv-power", []byte{0x26, 0x00, 0x01}, mac, config.KindIR)

	reset := func() { codeName, deviceRef, deviceHost = "", "", "" }
	t.Cleanup(reset)

	tests := []struct {
		name       string
		code       string
		args       []string
		want       []byte
		wantDevice string
		wantErr    bool
	}{
		{name: "hex argument", args: []string{"26 00 0a"}, want: []byte{0x26, 0x00, 0x0a}},
		{name: "saved code", code: "tv-power", want: []byte{0x26, 0x00, 0x01}, wantDevice: mac.Hex()},
		{name: "missing code", code: "radio", wantErr: true},
		{name: "both", code: "tv-power", args: []string{"2600"}, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "bad hex", args: []string{"xyz"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			codeName = tt.code

			got, err := resolveCode(registry, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("code = % x, want % x", got, tt.want)
			}
			if deviceRef != tt.wantDevice {
				t.Errorf("device = %q, want %q", deviceRef, tt.wantDevice)
			}
		})
	}
}
