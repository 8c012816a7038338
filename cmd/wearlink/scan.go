package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/device/goble"
	"github.com/xevox/wearlink/internal/session"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for supported health devices",
	Long: `Scan for nearby Bluetooth Low Energy health trackers and smartwatches.

Only peripherals whose advertised name matches a supported device family
are listed; unnamed and unrecognized peripherals are filtered out.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport := goble.NewTransport(logger)
	mgr := session.NewManager(transport, nil, session.ManagerOptions{
		ScanTimeout: cfg.Session.ScanTimeout,
	}, logger)
	defer mgr.Close()

	scanDone := make(chan error, 1)
	sub := mgr.Events().Subscribe(func(ev bus.Event) {
		switch ev.Type {
		case bus.DeviceFound:
			logger.WithField("device", ev.Device.Name).Debug("Device found")
		case bus.ScanStopped:
			scanDone <- nil
		case bus.ScanError:
			scanDone <- ev.Err
		}
	})
	defer sub.Unsubscribe()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping scan...")
		mgr.StopScan()
	}()

	fmt.Printf("Scanning for health devices (%s)...\n", scanDuration)
	if err := mgr.Scan(scanDuration); err != nil {
		return err
	}
	if err := <-scanDone; err != nil {
		return err
	}

	return displayDevices(mgr.Discovered())
}

func displayDevices(devices []*classify.ClassifiedDevice) error {
	if len(devices) == 0 {
		fmt.Println("No supported devices discovered")
		return nil
	}

	if scanFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	brand := color.New(color.FgCyan).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tTYPE\tMANUFACTURER\tRSSI")
	for _, d := range devices {
		manufacturer := d.Manufacturer
		if manufacturer != classify.UnknownManufacturer {
			manufacturer = brand(manufacturer)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d dBm\n",
			d.Name, d.Address, d.DeviceType, manufacturer, d.SignalStrength)
	}
	return w.Flush()
}
