package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/rmlink/internal/config"
	"github.com/muurk/rmlink/internal/devicetype"
	"github.com/muurk/rmlink/internal/protocol"
	"github.com/muurk/rmlink/internal/server"
	"github.com/muurk/rmlink/internal/ui"
	"github.com/muurk/rmlink/internal/urls"
)

// Library command flags
var (
	addNickname   string
	deleteForce   bool
	bridgeTimeout int
)

func init() {
	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesNameCmd)
	devicesCmd.AddCommand(devicesRemoveCmd)
	codesCmd.AddCommand(codesDeleteCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(codesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(bridgesCmd)
}

// loadRegistry returns the registry or a wrapped load error
func loadRegistry() (*config.Registry, error) {
	registry, err := config.GetGlobalRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return registry, nil
}

// devicesCmd lists the devices defined in the config file
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List and edit devices defined in the config file",
	Long: `Devices defined in the config file are used without discovery, which is
needed when broadcasts do not reach the device (other subnet, VPN, Docker).

A defined device can be referenced by nickname with --device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(registry.Devices))
		for key := range registry.Devices {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		rows := make([]ui.DeviceRow, 0, len(keys))
		for _, key := range keys {
			entry := registry.Devices[key]
			row := ui.DeviceRow{
				MAC:      key,
				Address:  fmt.Sprintf("%s:%d", entry.Host, entry.Port),
				Type:     entry.Type,
				Nickname: entry.Nickname,
			}
			if mac, err := protocol.ParseMAC(key); err == nil {
				row.MAC = mac.String()
			}
			if code, err := entry.TypeCode(); err == nil {
				info := devicetype.Classify(code)
				row.Model, row.Capability = info.Model, info.Capability.String()
			}
			rows = append(rows, row)
		}
		ui.NewPrinter(nil).PrintDevices(rows)
		return nil
	},
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <mac> <host>",
	Short: "Define a device by MAC address and IP",
	Example: `  rmlink devices add ec:0b:ae:8c:43:f1 192.168.1.50 --type 0x2787 --nickname living-room
  rmlink devices add ec0bae8c43f1 10.0.0.20 --type 0x5213 --port 80`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := protocol.ParseMAC(args[0])
		if err != nil {
			return err
		}
		code, err := parseTypeCode(deviceType)
		if err != nil {
			return err
		}
		info, err := devicetype.Validate(code)
		if err != nil {
			return err
		}

		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		entry := registry.SetDevice(mac, args[1], devicePort, code)
		entry.Nickname = addNickname
		if err := registry.Validate(); err != nil {
			return fmt.Errorf("invalid device: %w", err)
		}
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		ui.NewPrinter(nil).PrintSuccess("Device saved", map[string]string{
			"Device":   mac.String(),
			"Address":  fmt.Sprintf("%s:%d", args[1], devicePort),
			"Model":    info.Model,
			"Nickname": addNickname,
		})
		return nil
	},
}

var devicesNameCmd = &cobra.Command{
	Use:   "name <mac> <nickname>",
	Short: "Set the nickname of a defined device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := protocol.ParseMAC(args[0])
		if err != nil {
			return err
		}
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := registry.SetDeviceNickname(mac, args[1]); err != nil {
			return err
		}
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("%s is now %q\n", mac, args[1])
		return nil
	},
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <mac|nickname>",
	Short: "Remove a defined device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		mac, ok := registry.DeviceMAC(args[0])
		if !ok {
			return fmt.Errorf("no device %q in config", args[0])
		}
		if _, defined := registry.Devices[mac.Hex()]; !defined {
			return fmt.Errorf("no device %q in config", args[0])
		}
		delete(registry.Devices, mac.Hex())
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Removed %s\n", mac)
		return nil
	},
}

func init() {
	devicesAddCmd.Flags().StringVar(&addNickname, "nickname", "", "Nickname used with --device")
	codesDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without asking")
	bridgesCmd.Flags().IntVar(&bridgeTimeout, "timeout", 5, "Browse timeout in seconds")
}

// codesCmd lists the code library
var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "List saved codes",
	Long: `List the codes stored with 'rmlink learn --save'.

Saved codes are replayed with 'rmlink send --name <name>' or through the
bridge's send_named request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		rows := make([]ui.CodeRow, 0, len(registry.Codes))
		for _, name := range registry.CodeNames() {
			code := registry.Codes[name]
			row := ui.CodeRow{Name: name, Kind: code.Kind, Device: code.Device}
			if data, err := code.Bytes(); err == nil {
				row.Size = len(data)
			}
			if !code.Learned.IsZero() {
				row.Learned = code.Learned.Local().Format(time.DateTime)
			}
			if mac, err := protocol.ParseMAC(code.Device); err == nil {
				row.Device = mac.String()
				if entry, ok := registry.Devices[mac.Hex()]; ok && entry.Nickname != "" {
					row.Device = entry.Nickname
				}
			}
			rows = append(rows, row)
		}
		ui.NewPrinter(nil).PrintCodes(rows)
		return nil
	},
}

var codesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		name := args[0]
		if registry.GetCode(name) == nil {
			return fmt.Errorf("no saved code named %q", name)
		}
		if !deleteForce && !ui.Confirm(os.Stdin, os.Stdout, "Delete Code",
			[]string{fmt.Sprintf("The code %q will be removed from the library.", name)},
			"Delete it?") {
			return fmt.Errorf("cancelled")
		}

		registry.DeleteCode(name)
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Deleted %s\n", name)
		return nil
	},
}

// configCmd groups config file helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the rmlink config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults and an example device",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig()
		if err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintSuccess("Config created", map[string]string{
			"Path":  path,
			"Next":  "edit the example device, or run 'rmlink scan'",
			"Guide": urls.GettingStarted,
		})
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		p := ui.NewPrinter(nil)
		if err := registry.Validate(); err != nil {
			p.PrintError("Config has errors", err, nil)
			return err
		}
		p.PrintSuccess("Config is valid", map[string]string{
			"Devices": fmt.Sprint(len(registry.Devices)),
			"Codes":   fmt.Sprint(len(registry.Codes)),
		})
		return nil
	},
}

// bridgesCmd finds running bridges over mDNS
var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "Find rmlink bridges on the network",
	Long: `Browse mDNS for running rmlink-bridge instances and print their
WebSocket URLs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, stop := commandContext()
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, time.Duration(bridgeTimeout)*time.Second)
		defer cancel()

		bridges, err := server.FindBridges(ctx)
		if err != nil {
			return err
		}
		if len(bridges) == 0 {
			ui.NewPrinter(nil).PrintWarning("No bridges found", map[string]string{
				"Service": server.ServiceType,
				"Timeout": fmt.Sprintf("%ds", bridgeTimeout),
			})
			return nil
		}
		for _, b := range bridges {
			fmt.Printf("%-32s %s\n", b.Instance, b.URL())
		}
		return nil
	},
}
