package http

import (
	"net/http"

	"github.com/dkeye/Portal/internal/app/orch"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	orch *orch.Orchestrator
}

type ProfileRequest struct {
	Name string `json:"name" binding:"required"`
	Icon string `json:"icon"`
}

func (h *handlers) createRoom(c *gin.Context) {
	room, err := h.orch.CreateRoom(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) currentRoom(c *gin.Context) {
	room, err := h.orch.RoomOf(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) leaveRoom(c *gin.Context) {
	if err := h.orch.Leave(c.Request.Context(), currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) kickMember(c *gin.Context) {
	target := domain.UserID(c.Param("id"))
	if err := h.orch.Kick(c.Request.Context(), currentUser(c), target); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) joinInvite(c *gin.Context) {
	room, err := h.orch.JoinWithInvite(c.Request.Context(), currentUser(c), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) updateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	user, err := h.orch.UpdateProfile(c.Request.Context(), currentUser(c), req.Name, req.Icon)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *handlers) deleteUser(c *gin.Context) {
	if err := h.orch.DeleteUser(c.Request.Context(), currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
