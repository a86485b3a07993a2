package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

type enrollmentRequest struct {
	EmployeeID int64  `json:"employee_id" binding:"required"`
	DeviceUUID string `json:"device_uuid" binding:"required"`
	Finger     int    `json:"finger_position"`
}

func EnrollmentApi(r *gin.RouterGroup) {

	r.POST("", func(c *gin.Context) {
		var req enrollmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
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
		employee, err := provider.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		device, err := provider.GetDevice(ctx, req.DeviceUUID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if device.Status != storage.DeviceStatusApproved {
			AbortWithError(c, ErrDeviceNotApproved)
			return
		}

		id, err := engine.Enroll.Start(ctx, *employee, *device, storage.FingerPosition(req.Finger))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"session_id": id})
	})

	r.GET("", func(c *gin.Context) {
		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": engine.Enroll.List()})
	})

	r.GET("/:id", func(c *gin.Context) {
		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		snapshot, err := engine.Enroll.Get(c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})

	// Cancel is best-effort: once the session reached persisting it runs
	// to completion and the cancel is refused.
	r.DELETE("/:id", func(c *gin.Context) {
		err, engine := GetEngine(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		cancelled, err := engine.Enroll.Cancel(c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
	})
}
