package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mubeen104/uips-attendance/internal/audit"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/protocol/adms"
	"github.com/mubeen104/uips-attendance/internal/protocol/registry"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage attendance terminals",
	Long:  `Manage registered attendance terminals: listing, adding, approving, probing, and scanning for new ones.`,
}

func parseDeviceStatus(s string) (storage.DeviceStatus, error) {
	switch strings.ToLower(s) {
	case "pending":
		return storage.DeviceStatusPending, nil
	case "approved":
		return storage.DeviceStatusApproved, nil
	case "rejected":
		return storage.DeviceStatusRejected, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// getActiveUser returns a string identifying who is performing the action
// Format: username@hostname
func getActiveUser() string {
	username := "unknown"
	if currentUser, err := user.Current(); err == nil {
		username = currentUser.Username
	}

	hostname := "unknown"
	// Check environment variable first for SSH sessions
	if h := os.Getenv("SSH_CLIENT"); h != "" {
		ssh_client := strings.Split(h, " ")
		if len(ssh_client) > 0 {
			hostname = ssh_client[0]
		}
	} else if h, err := os.Hostname(); err == nil {
		hostname = h
	}

	return fmt.Sprintf("%s@%s", username, hostname)
}

var deviceListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List registered devices",
	Long:  `List devices, optionally filtered by status. Valid statuses: pending, approved, rejected.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var filter storage.DeviceStatus
		if len(args) > 0 {
			status, err := parseDeviceStatus(args[0])
			if err != nil {
				slog.Error("Invalid status", "status", args[0])
				fmt.Println("Valid statuses: pending, approved, rejected")
				os.Exit(1)
			}
			filter = status
		}

		devices, err := provider.ListDevices(ctx)
		if err != nil {
			slog.Error("Failed to list devices", "error", err)
			os.Exit(1)
		}

		// Print table
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tSERIAL\tNAME\tPROTOCOL\tSTATUS\tONLINE\tLAST SYNC\tCURSOR")
		count := 0
		for _, device := range devices {
			if filter != "" && device.Status != filter {
				continue
			}
			lastSync := "never"
			if device.LastSync != nil {
				lastSync = device.LastSync.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				device.UUID,
				device.SerialNumber,
				device.Name,
				device.ProtocolType,
				device.Status,
				device.IsOnline,
				lastSync,
				device.SyncCursor,
			)
			count++
		}
		w.Flush()

		if count == 0 {
			fmt.Println("No devices found")
		}
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <serial> <protocol> [ip] [port]",
	Short: "Register a new device",
	Long:  `Register a device by serial number and protocol (generic-tcp, adms, anviz, serial). IP and port are required for pull protocols.`,
	Args:  cobra.RangeArgs(2, 4),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		serial := args[0]
		protocolType := storage.ProtocolType(args[1])
		switch protocolType {
		case storage.ProtocolGenericTCP, storage.ProtocolADMS, storage.ProtocolAnviz, storage.ProtocolSerial:
		default:
			slog.Error("Invalid protocol type", "protocol", args[1])
			fmt.Println("Valid protocols: generic-tcp, adms, anviz, serial")
			os.Exit(1)
		}

		device := &storage.Device{
			UUID:         uuid.NewString(),
			SerialNumber: serial,
			Name:         serial,
			ProtocolType: protocolType,
			Status:       storage.DeviceStatusApproved,
		}
		if len(args) > 2 {
			device.IP = args[2]
		}
		if len(args) > 3 {
			if _, err := fmt.Sscanf(args[3], "%d", &device.Port); err != nil {
				slog.Error("Invalid port", "port", args[3], "error", err)
				os.Exit(1)
			}
		}

		name, _ := cmd.Flags().GetString("name")
		if name != "" {
			device.Name = name
		}
		device.AutoSyncEnabled, _ = cmd.Flags().GetBool("auto-sync")
		device.SyncIntervalSeconds, _ = cmd.Flags().GetInt("interval")
		if password, _ := cmd.Flags().GetString("password"); password != "" {
			device.DevicePassword = &password
		}

		if err := provider.CreateDevice(ctx, device); err != nil {
			slog.Error("Failed to create device", "serial", serial, "error", err)
			os.Exit(1)
		}

		audit.NewRecorder(provider).Record(ctx, getActiveUser(), audit.ActionDeviceCreate, device.UUID, device)
		fmt.Printf("Device %s registered with UUID %s\n", serial, device.UUID)
	},
}

var deviceApproveCmd = &cobra.Command{
	Use:   "approve <uuid>",
	Short: "Approve a pending device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		device, err := provider.GetDevice(ctx, args[0])
		if err != nil {
			slog.Error("Device not found", "uuid", args[0], "error", err)
			os.Exit(1)
		}

		if device.Status == storage.DeviceStatusApproved {
			fmt.Printf("Device %s is already approved\n", device.SerialNumber)
			return
		}

		device.Status = storage.DeviceStatusApproved
		if err := provider.UpdateDevice(ctx, device); err != nil {
			slog.Error("Failed to approve device", "uuid", args[0], "error", err)
			os.Exit(1)
		}

		approver := getActiveUser()
		audit.NewRecorder(provider).Record(ctx, approver, audit.ActionDeviceApprove, device.UUID, nil)
		fmt.Printf("Device %s approved successfully by %s\n", device.SerialNumber, approver)
	},
}

var deviceRejectCmd = &cobra.Command{
	Use:   "reject <uuid>",
	Short: "Reject a pending device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		device, err := provider.GetDevice(ctx, args[0])
		if err != nil {
			slog.Error("Device not found", "uuid", args[0], "error", err)
			os.Exit(1)
		}

		if device.Status == storage.DeviceStatusRejected {
			fmt.Printf("Device %s is already rejected\n", device.SerialNumber)
			return
		}

		device.Status = storage.DeviceStatusRejected
		if err := provider.UpdateDevice(ctx, device); err != nil {
			slog.Error("Failed to reject device", "uuid", args[0], "error", err)
			os.Exit(1)
		}

		fmt.Printf("Device %s rejected successfully by %s\n", device.SerialNumber, getActiveUser())
	},
}

var deviceTestCmd = &cobra.Command{
	Use:   "test <uuid>",
	Short: "Probe a device and report reachability",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		device, err := provider.GetDevice(ctx, args[0])
		if err != nil {
			slog.Error("Device not found", "uuid", args[0], "error", err)
			os.Exit(1)
		}

		adapters := registry.New(cfg, adms.NewCommandQueue())
		adapter, err := adapters.ForDevice(device)
		if err != nil {
			slog.Error("No adapter for device", "protocol", device.ProtocolType, "error", err)
			os.Exit(1)
		}

		diag, probeErr := adapter.TestConnection(ctx, device)
		if _, err := provider.TouchDeviceState(ctx, device.UUID, diag.Online, time.Now().UTC()); err != nil {
			slog.Error("Failed to record device state", "error", err)
		}
		if probeErr != nil {
			fmt.Printf("Device %s is unreachable: %v\n", device.SerialNumber, probeErr)
			os.Exit(1)
		}

		fmt.Printf("Device %s is online (%s, %dms)\n",
			device.SerialNumber, diag.Message, diag.Latency.Milliseconds())
	},
}

var deviceScanCmd = &cobra.Command{
	Use:   "scan <cidr>",
	Short: "Scan a subnet for listening terminals",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		timeout := time.Duration(cfg.Sync.ConnectTimeoutSeconds) * time.Second
		matches, err := protocol.ScanNetwork(ctx, args[0], protocol.DefaultScanPorts, timeout, 64)
		if err != nil {
			slog.Error("Scan failed", "cidr", args[0], "error", err)
			os.Exit(1)
		}

		if len(matches) == 0 {
			fmt.Println("No listening terminals found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IP\tPORT")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%d\n", m.IP, m.Port)
		}
		w.Flush()
	},
}

var devicePruneLogsCmd = &cobra.Command{
	Use:   "prune-logs [--days N]",
	Short: "Remove old sync log entries",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		days, _ := cmd.Flags().GetInt("days")
		olderThan := time.Now().UTC().AddDate(0, 0, -days)

		fmt.Printf("Pruning sync logs older than %d days (before %s)...\n",
			days, olderThan.Format("2006-01-02 15:04:05"))

		count, err := provider.PruneSyncLogs(ctx, olderThan)
		if err != nil {
			slog.Error("Failed to prune sync logs", "error", err)
			os.Exit(1)
		}

		if count == 0 {
			fmt.Println("No sync logs to prune")
		} else {
			fmt.Printf("Successfully pruned %d sync log entries\n", count)
		}
	},
}

func init() {
	deviceAddCmd.Flags().String("name", "", "Display name for the device")
	deviceAddCmd.Flags().String("password", "", "Device communication password")
	deviceAddCmd.Flags().Bool("auto-sync", true, "Include the device in the periodic sync schedule")
	deviceAddCmd.Flags().Int("interval", 60, "Sync interval in seconds")

	devicePruneLogsCmd.Flags().IntP("days", "d", 30, "Remove sync logs older than this many days")

	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceApproveCmd)
	deviceCmd.AddCommand(deviceRejectCmd)
	deviceCmd.AddCommand(deviceTestCmd)
	deviceCmd.AddCommand(deviceScanCmd)
	deviceCmd.AddCommand(devicePruneLogsCmd)
	rootCmd.AddCommand(deviceCmd)
}
