package routes

import "github.com/gin-gonic/gin"

func Health(r *gin.RouterGroup) {

	r.GET("/health", func(c *gin.Context) {
		msg := c.Query("ping")
		if msg == "" {
			msg = "pong"
		}

		err, provider := GetStorageProvider(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		version, err := provider.GetSchemaVersion(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message":        msg,
			"schema_version": version,
		})
	})
}
