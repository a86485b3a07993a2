package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mubeen104/uips-attendance/internal/enroll"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee_id> <device_uuid> [finger]",
	Short: "Enroll a fingerprint template",
	Long:  `Start an enrollment session against a device and poll it to completion. Finger position is 0-9, defaulting to 1 (left index).`,
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		employeeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			slog.Error("Invalid employee ID", "employee_id", args[0], "error", err)
			os.Exit(1)
		}

		finger := 1
		if len(args) > 2 {
			finger, err = strconv.Atoi(args[2])
			if err != nil || finger < 0 || finger > 9 {
				slog.Error("Invalid finger position", "finger", args[2])
				fmt.Println("Finger position must be 0-9")
				os.Exit(1)
			}
		}

		employee, err := provider.GetEmployee(ctx, employeeID)
		if err != nil {
			slog.Error("Employee not found", "employee_id", employeeID, "error", err)
			os.Exit(1)
		}
		device, err := provider.GetDevice(ctx, args[1])
		if err != nil {
			slog.Error("Device not found", "uuid", args[1], "error", err)
			os.Exit(1)
		}

		engine, err := NewEngineFromConfig(cfg, provider)
		if err != nil {
			slog.Error("Failed to assemble engine", "error", err)
			os.Exit(1)
		}

		// The registry probe is what marks the device online; enrollment
		// refuses devices not seen online.
		if !device.IsOnline {
			adapter, err := engine.Adapters.ForDevice(device)
			if err != nil {
				slog.Error("No adapter for device", "protocol", device.ProtocolType, "error", err)
				os.Exit(1)
			}
			if diag, err := adapter.TestConnection(ctx, device); err == nil && diag.Online {
				device.IsOnline = true
				provider.TouchDeviceState(ctx, device.UUID, true, time.Now().UTC())
			}
		}

		id, err := engine.Enroll.Start(ctx, *employee, *device, storage.FingerPosition(finger))
		if err != nil {
			slog.Error("Failed to start enrollment", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Enrollment session %s started for %s on %s, place finger on the sensor...\n",
			id, employee.FullName, device.SerialNumber)

		// Poll until the session reaches a terminal state.
		lastStatus := ""
		for {
			time.Sleep(500 * time.Millisecond)

			snapshot, err := engine.Enroll.Get(id)
			if err != nil {
				slog.Error("Session vanished", "session", id, "error", err)
				os.Exit(1)
			}

			if snapshot.Status != lastStatus {
				fmt.Printf("  [%3d%%] %s: %s\n", snapshot.Percent, snapshot.State, snapshot.Status)
				lastStatus = snapshot.Status
			}

			switch snapshot.State {
			case enroll.StateComplete:
				fmt.Printf("Template stored for %s (finger %d)\n", employee.FullName, finger)
				return
			case enroll.StateFailed:
				fmt.Printf("Enrollment failed: %s\n", snapshot.Error)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}
