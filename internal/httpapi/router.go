package httpapi

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine exposing every gateway endpoint, wired
// against deps.
func NewRouter(deps *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/nonce", deps.rateLimitMiddleware("nonce"), deps.handleNonce)
	auth.POST("/verify", deps.rateLimitMiddleware("verify"), deps.handleVerify)

	session := api.Group("")
	session.Use(deps.sessionMiddleware())
	session.GET("/me", deps.handleMe)
	session.GET("/search", deps.handleSearch)
	session.GET("/token/meta", deps.handleTokenMeta)
	session.GET("/token/allowance", deps.handleTokenAllowance)
	session.POST("/order/limit", deps.handlePlaceLimitOrder)
	session.POST("/order/cancel", deps.handleCancelOrder)
	session.POST("/order/cancel-all", deps.handleCancelAll)
	session.POST("/tp/arm", deps.handleArmTp)
	session.GET("/tp/status", deps.handleTpStatus)

	return r
}
