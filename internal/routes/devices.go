package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mubeen104/uips-attendance/internal/audit"
	"github.com/mubeen104/uips-attendance/internal/config"
	"github.com/mubeen104/uips-attendance/internal/protocol"
	"github.com/mubeen104/uips-attendance/internal/storage"
)

type deviceRequest struct {
	SerialNumber        string  `json:"serial_number" binding:"required"`
	Name                string  `json:"name"`
	IP                  string  `json:"ip"`
	Port                int     `json:"port"`
	ProtocolType        string  `json:"protocol_type" binding:"required"`
	DevicePassword      *string `json:"device_password"`
	AutoSyncEnabled     bool    `json:"auto_sync_enabled"`
	SyncIntervalSeconds int     `json:"sync_interval_seconds"`
	MaxUsers            int     `json:"max_users"`
	MaxFingerprints     int     `json:"max_fingerprints"`
	MaxRecords          int     `json:"max_records"`
}

func validProtocolType(t string) bool {
	switch storage.ProtocolType(t) {
	case storage.ProtocolGenericTCP, storage.ProtocolADMS, storage.ProtocolAnviz, storage.ProtocolSerial:
		return true
	}
	return false
}

func DevicesApi(r *gin.RouterGroup) {

	r.GET("", func(c *gin.Context) {
		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		devices, err := provider.ListDevices(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": devices})
	})

	r.POST("", func(c *gin.Context) {
		var req deviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		if !validProtocolType(req.ProtocolType) {
			AbortWithError(c, fmt.Errorf("%w: protocol_type %q", ErrInvalidParameter, req.ProtocolType))
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

		device := &storage.Device{
			UUID:                uuid.NewString(),
			SerialNumber:        req.SerialNumber,
			Name:                req.Name,
			IP:                  req.IP,
			Port:                req.Port,
			ProtocolType:        storage.ProtocolType(req.ProtocolType),
			Status:              storage.DeviceStatusApproved,
			DevicePassword:      req.DevicePassword,
			AutoSyncEnabled:     req.AutoSyncEnabled,
			SyncIntervalSeconds: req.SyncIntervalSeconds,
			MaxUsers:            req.MaxUsers,
			MaxFingerprints:     req.MaxFingerprints,
			MaxRecords:          req.MaxRecords,
		}
		if err := provider.CreateDevice(c.Request.Context(), device); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrFailedToCreateDevice, err))
			return
		}

		engine.Audit.Record(c.Request.Context(), c.ClientIP(), audit.ActionDeviceCreate, device.UUID, req)
		c.JSON(http.StatusCreated, device)
	})

	r.GET("/:uuid", func(c *gin.Context) {
		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		device, err := provider.GetDevice(c.Request.Context(), c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	})

	r.PUT("/:uuid", func(c *gin.Context) {
		var req deviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		if !validProtocolType(req.ProtocolType) {
			AbortWithError(c, fmt.Errorf("%w: protocol_type %q", ErrInvalidParameter, req.ProtocolType))
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

		ctx := c.Request.Context()
		device, err := provider.GetDevice(ctx, c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device.Name = req.Name
		device.IP = req.IP
		device.Port = req.Port
		device.ProtocolType = storage.ProtocolType(req.ProtocolType)
		device.DevicePassword = req.DevicePassword
		device.AutoSyncEnabled = req.AutoSyncEnabled
		device.SyncIntervalSeconds = req.SyncIntervalSeconds
		device.MaxUsers = req.MaxUsers
		device.MaxFingerprints = req.MaxFingerprints
		device.MaxRecords = req.MaxRecords

		if err := provider.UpdateDevice(ctx, device); err != nil {
			AbortWithError(c, err)
			return
		}

		engine.Audit.Record(ctx, c.ClientIP(), audit.ActionDeviceUpdate, device.UUID, req)
		c.JSON(http.StatusOK, device)
	})

	r.DELETE("/:uuid", func(c *gin.Context) {
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

		ctx := c.Request.Context()
		if err := provider.DeleteDevice(ctx, c.Param("uuid")); err != nil {
			AbortWithError(c, err)
			return
		}

		engine.Audit.Record(ctx, c.ClientIP(), audit.ActionDeviceDelete, c.Param("uuid"), nil)
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	// Approve a self-registered (pending) device.
	r.POST("/:uuid/approve", func(c *gin.Context) {
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

		ctx := c.Request.Context()
		device, err := provider.GetDevice(ctx, c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device.Status = storage.DeviceStatusApproved
		if err := provider.UpdateDevice(ctx, device); err != nil {
			AbortWithError(c, err)
			return
		}

		slog.Info("Device approved", "device", device.SerialNumber)
		engine.Audit.Record(ctx, c.ClientIP(), audit.ActionDeviceApprove, device.UUID, nil)
		c.JSON(http.StatusOK, device)
	})

	// Probe the device and record the observation.
	r.POST("/:uuid/test", func(c *gin.Context) {
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

		ctx := c.Request.Context()
		device, err := provider.GetDevice(ctx, c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		adapter, err := engine.Adapters.ForDevice(device)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		diag, probeErr := adapter.TestConnection(ctx, device)
		if _, err := provider.TouchDeviceState(ctx, device.UUID, diag.Online, time.Now().UTC()); err != nil {
			slog.Error("Failed to record device state", "device", device.SerialNumber, "error", err)
		}
		if probeErr != nil {
			AbortWithError(c, probeErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"online":     diag.Online,
			"message":    diag.Message,
			"latency_ms": diag.Latency.Milliseconds(),
		})
	})

	// Sync-now: one immediate pull outside the scheduler.
	r.POST("/:uuid/sync", func(c *gin.Context) {
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

		ctx := c.Request.Context()
		device, err := provider.GetDevice(ctx, c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if device.Status != storage.DeviceStatusApproved {
			AbortWithError(c, ErrDeviceNotApproved)
			return
		}

		if err := engine.Syncer.SyncDevice(ctx, device); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"cursor":  device.SyncCursor,
		})
	})

	// Push the server clock to the device.
	r.POST("/:uuid/time", func(c *gin.Context) {
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

		ctx := c.Request.Context()
		device, err := provider.GetDevice(ctx, c.Param("uuid"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		adapter, err := engine.Adapters.ForDevice(device)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		now := time.Now().UTC()
		if err := adapter.SetTime(ctx, device, now); err != nil {
			AbortWithError(c, err)
			return
		}

		engine.Audit.Record(ctx, c.ClientIP(), audit.ActionTimeSet, device.UUID, gin.H{"time": now})
		c.JSON(http.StatusOK, gin.H{"success": true, "time": now})
	})

	r.GET("/:uuid/synclog", func(c *gin.Context) {
		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		entries, err := provider.ListSyncLogs(c.Request.Context(), c.Param("uuid"), limit)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	// Sweep a subnet for listening terminals.
	r.POST("/scan", func(c *gin.Context) {
		var req struct {
			CIDR  string `json:"cidr" binding:"required"`
			Ports []int  `json:"ports"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
		if len(req.Ports) == 0 {
			req.Ports = protocol.DefaultScanPorts
		}

		timeout := time.Duration(config.Cfg.Sync.ConnectTimeoutSeconds) * time.Second
		matches, err := protocol.ScanNetwork(c.Request.Context(), req.CIDR, req.Ports, timeout, 64)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": matches})
	})
}
