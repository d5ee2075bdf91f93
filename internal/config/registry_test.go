package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/rmlink/internal/protocol"
)

var testMAC = protocol.MAC{0xec, 0x0b, 0xae, 0x8c, 0x43, 0xf1}

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "rmlink") {
		t.Errorf("GetConfigDir() = %v, should contain 'rmlink'", configDir)
	}

	// Platform-specific checks
	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only honoured on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if want := filepath.Join(dir, "rmlink"); got != want {
		t.Errorf("GetConfigDir() = %v, want %v", got, want)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if os.Getenv(EnvConfigPath) == "" && filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	override := filepath.Join(t.TempDir(), "other.yaml")
	t.Setenv(EnvConfigPath, override)
	if got, _ := GetConfigPath(); got != override {
		t.Errorf("GetConfigPath() = %v, want %v", got, override)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil || reg.Codes == nil {
		t.Error("maps should not be nil")
	}

	p := reg.Preferences
	if p.DiscoverDuration() != 10*time.Second {
		t.Errorf("DiscoverDuration() = %v, want 10s", p.DiscoverDuration())
	}
	if p.RequestDuration() != 5*time.Second {
		t.Errorf("RequestDuration() = %v, want 5s", p.RequestDuration())
	}
	if p.InitialCounter != 4444 {
		t.Errorf("InitialCounter = %v, want 4444", p.InitialCounter)
	}
	if p.Bridge == nil || !p.Bridge.Advertise {
		t.Error("bridge advertisement should be on by default")
	}

	if err := reg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestRegistryDevices(t *testing.T) {
	reg := NewRegistry()

	d := reg.SetDevice(testMAC, "192.168.1.50", 0, 0x2787)
	if d.Type != "0x2787" {
		t.Errorf("Type = %q, want 0x2787", d.Type)
	}
	if again := reg.SetDevice(testMAC, "192.168.1.51", 80, 0x2787); again != d || d.Host != "192.168.1.51" {
		t.Error("SetDevice() should update the existing entry")
	}

	if err := reg.SetDeviceNickname(testMAC, "Living Room"); err != nil {
		t.Fatalf("SetDeviceNickname() error = %v", err)
	}
	if err := reg.SetDeviceNickname(protocol.MAC{0x01}, "ghost"); err == nil {
		t.Error("SetDeviceNickname() on an unknown device should fail")
	}

	for _, ref := range []string{"ec0bae8c43f1", "EC:0B:AE:8C:43:F1", "living room"} {
		if got := reg.GetDevice(ref); got != d {
			t.Errorf("GetDevice(%q) = %v", ref, got)
		}
	}
	if reg.GetDevice("kitchen") != nil {
		t.Error("GetDevice(kitchen) should be nil")
	}

	if mac, ok := reg.DeviceMAC("Living Room"); !ok || mac != testMAC {
		t.Errorf("DeviceMAC(nickname) = %v, %v", mac, ok)
	}
	if mac, ok := reg.DeviceMAC("24:df:a7:01:02:03"); !ok || mac.Hex() != "24dfa7010203" {
		t.Errorf("DeviceMAC(mac) = %v, %v", mac, ok)
	}
	if _, ok := reg.DeviceMAC("kitchen"); ok {
		t.Error("DeviceMAC(kitchen) should fail")
	}

	code, err := d.TypeCode()
	if err != nil || code != 0x2787 {
		t.Errorf("TypeCode() = 0x%04x, %v", code, err)
	}
}

func TestRegistryCodes(t *testing.T) {
	reg := NewRegistry()
	data := []byte{0x26, 0x00, 0x02, 0x00, 0xaa, 0xbb}

	reg.SaveCode("tv-power", data, testMAC, KindIR)
	reg.SaveCode("fan", []byte{0xb2}, testMAC, KindRF)

	c := reg.GetCode("tv-power")
	if c == nil {
		t.Fatal("GetCode() = nil")
	}
	if c.Data != "26000200aabb" || c.Device != "ec0bae8c43f1" || c.Kind != KindIR {
		t.Errorf("code = %+v", c)
	}
	got, err := c.Bytes()
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("Bytes() = % x, %v", got, err)
	}

	if names := reg.CodeNames(); len(names) != 2 || names[0] != "fan" || names[1] != "tv-power" {
		t.Errorf("CodeNames() = %v", names)
	}

	if !reg.DeleteCode("fan") || reg.DeleteCode("fan") {
		t.Error("DeleteCode() should succeed once")
	}
	if reg.GetCode("fan") != nil {
		t.Error("deleted code still present")
	}
}

func TestRegistryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Registry)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(r *Registry) { r.SetDevice(testMAC, "192.168.1.50", 80, 0x5213) },
		},
		{
			name:    "bad version",
			mutate:  func(r *Registry) { r.Version = 2 },
			wantErr: "unsupported config version",
		},
		{
			name:    "zero request timeout",
			mutate:  func(r *Registry) { r.Preferences.RequestTimeout = 0 },
			wantErr: "request_timeout",
		},
		{
			name:    "bridge port",
			mutate:  func(r *Registry) { r.Preferences.Bridge.Port = 70000 },
			wantErr: "bridge port",
		},
		{
			name:    "unsupported device type",
			mutate:  func(r *Registry) { r.SetDevice(testMAC, "192.168.1.50", 80, 0x2711) },
			wantErr: "unsupported device type",
		},
		{
			name:    "colon key",
			mutate:  func(r *Registry) { r.Devices["ec:0b:ae:8c:43:f1"] = &Device{Host: "h", Type: "0x2787"} },
			wantErr: "12 lowercase hex digits",
		},
		{
			name:    "missing host",
			mutate:  func(r *Registry) { r.Devices[testMAC.Hex()] = &Device{Type: "0x2787"} },
			wantErr: "host is required",
		},
		{
			name:    "bad type",
			mutate:  func(r *Registry) { r.Devices[testMAC.Hex()] = &Device{Host: "h", Type: "rm"} },
			wantErr: "invalid device type",
		},
		{
			name:    "bad code data",
			mutate:  func(r *Registry) { r.Codes["x"] = &Code{Data: "zz", Kind: KindIR} },
			wantErr: "invalid code data",
		},
		{
			name:    "bad code kind",
			mutate:  func(r *Registry) { r.Codes["x"] = &Code{Data: "26", Kind: "uv"} },
			wantErr: "kind must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			tt.mutate(reg)
			err := reg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.SetDevice(testMAC, "192.168.1.50", 0, 0x2787)
	if err := reg.SetDeviceNickname(testMAC, "living-room"); err != nil {
		t.Fatal(err)
	}
	reg.SaveCode("tv-power", []byte{0x26, 0x00}, testMAC, KindIR)
	reg.Preferences.LogLevel = "debug"

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.yaml" {
		t.Errorf("config dir holds %d entries, want only config.yaml", len(entries))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("# rmlink configuration")) {
		t.Errorf("missing file header: %q", data[:min(len(data), 40)])
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	d := loaded.GetDevice("living-room")
	if d == nil || d.Host != "192.168.1.50" || d.Type != "0x2787" {
		t.Errorf("loaded device = %+v", d)
	}
	if c := loaded.GetCode("tv-power"); c == nil || c.Data != "2600" {
		t.Errorf("loaded code = %+v", c)
	}
	if loaded.Preferences.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", loaded.Preferences.LogLevel)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadRegistryFrom(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		reg, err := LoadRegistryFrom(filepath.Join(dir, "absent.yaml"))
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if reg.Preferences.DiscoverTimeout != 10 {
			t.Errorf("DiscoverTimeout = %d", reg.Preferences.DiscoverTimeout)
		}
	})

	t.Run("partial preferences are filled", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		doc := "version: 1\npreferences:\n  request_timeout: 2\n"
		if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
			t.Fatal(err)
		}
		reg, err := LoadRegistryFrom(path)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		p := reg.Preferences
		if p.RequestTimeout != 2 || p.DiscoverTimeout != 10 || p.InitialCounter != 4444 || p.Bridge == nil {
			t.Errorf("preferences = %+v", p)
		}
		if reg.Devices == nil || reg.Codes == nil {
			t.Error("maps should be initialized")
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		path := filepath.Join(dir, "v2.yaml")
		if err := os.WriteFile(path, []byte("version: 2\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRegistryFrom(path); err == nil {
			t.Error("expected version error")
		}
	})

	t.Run("empty file gives defaults", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatal(err)
		}
		reg, err := LoadRegistryFrom(path)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if reg.Version != 1 || reg.Preferences == nil {
			t.Errorf("registry = %+v", reg)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "typo.yaml")
		doc := "version: 1\npreferences:\n  request_timout: 2\n"
		if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadRegistryFrom(path)
		if err == nil || !strings.Contains(err.Error(), "request_timout") {
			t.Errorf("error = %v, want the unknown key named", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("version: [\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRegistryFrom(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)

	got, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %v, want %v", got, path)
	}
	reg, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}

	if _, err := CreateDefaultConfig(); err == nil {
		t.Error("second CreateDefaultConfig() should refuse to overwrite")
	}
}

func BenchmarkGetDevice(b *testing.B) {
	reg := NewRegistry()
	reg.SetDevice(testMAC, "192.168.1.50", 0, 0x2787)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.GetDevice("ec:0b:ae:8c:43:f1")
	}
}
