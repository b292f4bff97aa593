package controllers

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/partyline-console/command"
	"github.com/moyoez/partyline-console/tool"
)

// HandleCommand runs one control action.
// POST /api/console/v1/command/:action
func (ctrl *ConsoleController) HandleCommand(c *gin.Context) {
	action, err := command.ParseAction(c.Param("action"))
	if err != nil {
		c.JSON(http.StatusNotFound, tool.FastReturnError(err.Error()))
		return
	}
	if err := ctrl.session.Commands.Run(c.Request.Context(), action); err != nil {
		c.JSON(http.StatusBadGateway, tool.FastReturnError(err.Error()))
		return
	}
	if action == command.RestartBackend {
		c.JSON(http.StatusOK, tool.FastReturnInfo(command.RestartBackendNotice))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleDownloadMix streams the recorded mix to the browser.
// GET /api/console/v1/download/mix
func (ctrl *ConsoleController) HandleDownloadMix(c *gin.Context) {
	err := ctrl.session.Commands.DownloadMix(c.Request.Context(), func(_ context.Context, f *os.File) error {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		c.DataFromReader(http.StatusOK, info.Size(), "audio/wav", f, map[string]string{
			"Content-Disposition": `attachment; filename="mix.wav"`,
		})
		return nil
	})
	if err != nil && !c.Writer.Written() {
		c.JSON(http.StatusBadGateway, tool.FastReturnError(err.Error()))
	}
}
