package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xevox/wearlink/internal/backend"
	"github.com/xevox/wearlink/internal/bus"
	"github.com/xevox/wearlink/internal/device/goble"
	"github.com/xevox/wearlink/internal/session"
	"github.com/xevox/wearlink/internal/telemetry"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <device-name-or-address>",
	Short: "Connect to a device and stream health telemetry",
	Long: `Scan for the named device, connect to it, and print health samples as
they arrive until interrupted with Ctrl+C.

The device argument matches the advertised name (case-insensitive
substring) or the exact peripheral address. Samples are uploaded to the
configured backend when one is reachable; upload failures are reported
but do not stop the stream.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorScanDuration time.Duration
	monitorInterval     time.Duration
	monitorNoBackend    bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorScanDuration, "scan-duration", "d", 10*time.Second, "How long to scan before giving up on finding the device")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Sampling interval (0 uses the configured default)")
	monitorCmd.Flags().BoolVar(&monitorNoBackend, "no-backend", false, "Skip backend registration and uploads")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	var be session.Backend
	if !monitorNoBackend {
		be = backend.NewClient(backend.Options{
			BaseURL:        cfg.Backend.BaseURL,
			AuthToken:      cfg.Backend.AuthToken,
			UserID:         cfg.Backend.UserID,
			RequestTimeout: cfg.Backend.RequestTimeout,
		}, logger)
	}

	interval := cfg.Session.SampleInterval
	if monitorInterval > 0 {
		interval = monitorInterval
	}

	transport := goble.NewTransport(logger)
	mgr := session.NewManager(transport, be, session.ManagerOptions{
		ScanTimeout:    cfg.Session.ScanTimeout,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		SampleInterval: interval,
	}, logger)
	defer mgr.Close()

	deviceID, err := findDevice(mgr, target)
	if err != nil {
		return err
	}

	good := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	sub := mgr.Events().Subscribe(func(ev bus.Event) {
		switch ev.Type {
		case bus.ConnectionStatusChanged:
			if ev.Connected {
				fmt.Printf("%s %s (%s)\n", good("Connected:"), ev.Device.Name, ev.Device.Address)
			} else {
				fmt.Printf("%s %s\n", bad("Disconnected:"), ev.Device.Name)
			}
		case bus.HealthDataReceived:
			printSample(ev.Sample)
		case bus.HealthDataError:
			fmt.Printf("%s %v\n", bad("Upload failed:"), ev.Err)
		}
	})
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.ConnectTimeout)
	sess, err := mgr.Connect(ctx, deviceID)
	cancel()
	if err != nil {
		return err
	}
	logger.WithField("session", sess.ID).Debug("Session established")

	// Stream until Ctrl+C or the device drops the link
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		fmt.Println("\nCtrl+C pressed, disconnecting...")
		return mgr.Disconnect()
	case <-sess.Link().Disconnected():
		return nil
	}
}

// findDevice scans until the target shows up or the scan window closes.
func findDevice(mgr *session.Manager, target string) (string, error) {
	found := make(chan string, 1)
	scanDone := make(chan error, 1)

	needle := strings.ToLower(target)
	sub := mgr.Events().Subscribe(func(ev bus.Event) {
		switch ev.Type {
		case bus.DeviceFound:
			if strings.Contains(strings.ToLower(ev.Device.Name), needle) ||
				strings.EqualFold(ev.Device.Address, target) {
				select {
				case found <- ev.Device.ID:
				default:
				}
			}
		case bus.ScanStopped:
			scanDone <- nil
		case bus.ScanError:
			scanDone <- ev.Err
		}
	})
	defer sub.Unsubscribe()

	fmt.Printf("Scanning for %q...\n", target)
	if err := mgr.Scan(monitorScanDuration); err != nil {
		return "", err
	}

	select {
	case id := <-found:
		mgr.StopScan()
		return id, nil
	case err := <-scanDone:
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("device %q not found within %s", target, monitorScanDuration)
	}
}

func printSample(s *telemetry.Sample) {
	source := "synthetic"
	if s.SourceIsDevice {
		source = "device"
	}

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.1f", name, s.Metrics[name]))
	}
	fmt.Printf("[%s] %s (%s)\n", s.Timestamp.Format("15:04:05"), strings.Join(parts, " "), source)
}
