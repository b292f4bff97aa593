package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/partyline-console/console"
	"github.com/moyoez/partyline-console/tool"
)

// ConsoleController serves one session to the dashboard.
type ConsoleController struct {
	session *console.Session
}

func NewConsoleController(session *console.Session) *ConsoleController {
	return &ConsoleController{session: session}
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// HandleState returns the full snapshot with derived meters and badges.
// GET /api/console/v1/state
func (ctrl *ConsoleController) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, ctrl.session.View())
}

// HandleVisibility records whether the dashboard is on screen. Polling stops
// while it is hidden.
// POST /api/console/v1/visibility
func (ctrl *ConsoleController) HandleVisibility(c *gin.Context) {
	var body visibilityRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Visible == nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required field: visible"))
		return
	}
	ctrl.session.SetVisible(*body.Visible)
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{"visible": *body.Visible}))
}

// HandleStats returns per-task scheduler counters.
// GET /api/console/v1/stats
func (ctrl *ConsoleController) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session": ctrl.session.ID,
		"origin":  ctrl.session.Client.Origin(),
		"visible": ctrl.session.Visible(),
		"tasks":   ctrl.session.Scheduler.AllStats(),
	})
}

// HandleRefresh asks for an out-of-band status poll.
// POST /api/console/v1/refresh
func (ctrl *ConsoleController) HandleRefresh(c *gin.Context) {
	ctrl.session.RefreshStatus()
	c.JSON(http.StatusAccepted, tool.FastReturnSuccess())
}
