package http

import (
	"context"

	"github.com/dkeye/Portal/internal/adapters/signal"
	"github.com/dkeye/Portal/internal/app/orch"
	"github.com/dkeye/Portal/internal/config"
	"github.com/dkeye/Portal/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ids core.IdentityResolver) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(o, cfg.Typing.Limit, cfg.Typing.Interval, cfg.ReadLimit)
	h := &handlers{orch: o}

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	authed := api.Group("", IdentityMiddleware(ids))
	authed.POST("/rooms", h.createRoom)
	authed.GET("/rooms/@me", h.currentRoom)
	authed.DELETE("/rooms/@me", h.leaveRoom)
	authed.POST("/rooms/@me/members/:id/kick", h.kickMember)
	authed.POST("/invites/:code/join", h.joinInvite)
	authed.PATCH("/users/@me", h.updateProfile)
	authed.DELETE("/users/@me", h.deleteUser)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
