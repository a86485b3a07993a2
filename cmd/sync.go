package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [uuid]",
	Short: "Pull attendance logs from devices",
	Long:  `Run one sync pass. With a device UUID, syncs only that device; otherwise every auto-sync device is pulled once.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		engine, err := NewEngineFromConfig(cfg, provider)
		if err != nil {
			slog.Error("Failed to assemble engine", "error", err)
			os.Exit(1)
		}

		if len(args) > 0 {
			device, err := provider.GetDevice(ctx, args[0])
			if err != nil {
				slog.Error("Device not found", "uuid", args[0], "error", err)
				os.Exit(1)
			}
			if err := engine.Syncer.SyncDevice(ctx, device); err != nil {
				slog.Error("Sync failed", "device", device.SerialNumber, "error", err)
				os.Exit(1)
			}
			fmt.Printf("Device %s synced, cursor now %q\n", device.SerialNumber, device.SyncCursor)
			return
		}

		devices, err := provider.ListAutoSyncDevices(ctx)
		if err != nil {
			slog.Error("Failed to list devices", "error", err)
			os.Exit(1)
		}
		if len(devices) == 0 {
			fmt.Println("No auto-sync devices registered")
			return
		}

		failures := 0
		for i := range devices {
			device := devices[i]
			if err := engine.Syncer.SyncDevice(ctx, &device); err != nil {
				slog.Error("Sync failed", "device", device.SerialNumber, "error", err)
				failures++
				continue
			}
			fmt.Printf("Device %s synced\n", device.SerialNumber)
		}

		if failures > 0 {
			fmt.Printf("%d of %d devices failed to sync\n", failures, len(devices))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
