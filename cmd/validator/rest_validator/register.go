package restvalidator

import "github.com/gin-gonic/gin"

// Register registers handlers to the gin router
type Register interface {
	Register(*gin.Engine)
}
