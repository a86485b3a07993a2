package routes

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mubeen104/uips-attendance/internal/protocol/adms"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

// PushApi serves the ZKTeco ADMS push protocol. Terminals speak plain text
// over the vendor-fixed /iclock paths; every response body here is text, not
// JSON, because the firmware parses nothing else.
func PushApi(r *gin.RouterGroup) {

	// Initial handshake. The terminal announces itself and expects its
	// upload parameters back.
	r.GET("/cdata", func(c *gin.Context) {
		serial := c.Query("SN")
		if serial == "" {
			c.String(http.StatusBadRequest, "ERROR: SN required")
			return
		}

		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device := resolvePushDevice(c, provider, serial)
		if device == nil {
			return
		}

		c.String(http.StatusOK, strings.Join([]string{
			"GET OPTION FROM: " + serial,
			"ATTLOGStamp=None",
			"OPERLOGStamp=9999",
			"ErrorDelay=30",
			"Delay=10",
			"TransTimes=00:00;14:05",
			"TransInterval=1",
			"TransFlag=1111000000",
			"Realtime=1",
			"Encrypt=None",
		}, "\r\n"))
	})

	// Data upload. table=ATTLOG carries attendance punches, one per line.
	r.POST("/cdata", func(c *gin.Context) {
		serial := c.Query("SN")
		if serial == "" {
			c.String(http.StatusBadRequest, "ERROR: SN required")
			return
		}

		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device := resolvePushDevice(c, provider, serial)
		if device == nil {
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "ERROR: unreadable body")
			return
		}

		if c.Query("table") != "ATTLOG" {
			// Operation logs and the like are acknowledged, not stored.
			c.String(http.StatusOK, "OK")
			return
		}

		// Punches from a device awaiting approval are not ingested. The
		// terminal retries after approval; nothing is lost.
		if device.Status != storage.DeviceStatusApproved {
			slog.Warn("Dropping punches from unapproved device", "device", serial, "status", device.Status)
			c.String(http.StatusOK, "OK: 0")
			return
		}

		events, parseErrs := adms.ParseAttLog(string(body), time.UTC)
		for _, perr := range parseErrs {
			slog.Warn("Skipping malformed punch line", "device", serial, "error", perr)
		}

		result, err := engine.Pipeline.Process(c.Request.Context(), device, events)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		slog.Info("Push batch ingested",
			"device", serial,
			"received", len(events),
			"inserted", result.Inserted,
			"duplicates", result.Duplicates,
			"unknown", result.Unknown,
		)
		c.String(http.StatusOK, "OK: %d", result.Inserted)
	})

	// Command poll. Doubles as the heartbeat that keeps the device online.
	r.GET("/getrequest", func(c *gin.Context) {
		serial := c.Query("SN")
		if serial == "" {
			c.String(http.StatusBadRequest, "ERROR: SN required")
			return
		}

		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device := resolvePushDevice(c, provider, serial)
		if device == nil {
			return
		}

		commands := engine.Commands.Drain(device.SerialNumber)
		if len(commands) == 0 {
			c.String(http.StatusOK, "OK")
			return
		}
		c.String(http.StatusOK, strings.Join(commands, "\r\n"))
	})

	// Command result acknowledgement.
	r.POST("/devicecmd", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
}

// resolvePushDevice looks up the device by serial, self-registering unknown
// terminals as pending, and records the contact as a heartbeat. Returns nil
// after writing the response when the caller should stop.
func resolvePushDevice(c *gin.Context, provider storage.Provider, serial string) *storage.Device {
	ctx := c.Request.Context()

	device, err := provider.GetDeviceBySerial(ctx, serial)
	if errors.Is(err, storage.ErrNotFound) {
		// New terminal on the network. Park it as pending until an
		// operator approves it.
		slog.Info("New push device detected, adding to pending pool", "serial", serial)
		device = &storage.Device{
			UUID:         uuid.NewString(),
			SerialNumber: serial,
			Name:         serial,
			IP:           c.ClientIP(),
			ProtocolType: storage.ProtocolADMS,
			Status:       storage.DeviceStatusPending,
		}
		if err := provider.CreateDevice(ctx, device); err != nil {
			slog.Error("Failed to self-register device", "serial", serial, "error", err)
			c.String(http.StatusInternalServerError, "ERROR")
			return nil
		}
	} else if err != nil {
		slog.Error("Device lookup failed", "serial", serial, "error", err)
		c.String(http.StatusInternalServerError, "ERROR")
		return nil
	}

	if device.Status == storage.DeviceStatusRejected {
		c.String(http.StatusForbidden, "ERROR: rejected")
		return nil
	}

	if _, err := provider.TouchDeviceState(ctx, device.UUID, true, time.Now().UTC()); err != nil {
		slog.Error("Failed to record heartbeat", "serial", serial, "error", err)
	}
	return device
}
