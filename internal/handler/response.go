// Package handler holds the gin handlers of the HTTP API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// respondError writes {"error": msg} with the status mapped from err.
func respondError(c *gin.Context, component string, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] %s %s failed: %v", component, c.Request.Method, c.FullPath(), err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		log.Warnf("[%s] %s %s rejected: %v", component, c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

// respondData wraps data in the {code, message, data} envelope of the admin API.
func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": "success", "data": data})
}
