package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

type configPatchRequest struct {
	types.ConfigPatch
	Revision *uint64 `json:"revision,omitempty"` // reject the edit if the draft moved on
}

// HandleConfigGet returns the current draft.
// GET /api/console/v1/config
func (ctrl *ConsoleController) HandleConfigGet(c *gin.Context) {
	draft, rev := ctrl.session.Store.Draft()
	c.JSON(http.StatusOK, gin.H{
		"config":   draft,
		"dirty":    ctrl.session.Config.Dirty(),
		"revision": rev,
	})
}

// HandleConfigPatch accepts a partial edit of the draft. It never submits.
// PATCH /api/console/v1/config
func (ctrl *ConsoleController) HandleConfigPatch(c *gin.Context) {
	var body configPatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	if body.TxSource != nil && *body.TxSource != types.TxSourceSine && *body.TxSource != types.TxSourceMic {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("tx_source must be sine or mic"))
		return
	}
	if body.RxSinkMode != nil && *body.RxSinkMode != types.RxSinkFile && *body.RxSinkMode != types.RxSinkAuto {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("rx_sink_mode must be file or auto"))
		return
	}

	if body.Revision != nil {
		if !ctrl.session.Config.ApplyPatchAt(*body.Revision, body.ConfigPatch) {
			c.JSON(http.StatusConflict, tool.FastReturnError("Draft changed since revision was read"))
			return
		}
	} else {
		ctrl.session.Config.ApplyPatch(body.ConfigPatch)
	}
	ctrl.HandleConfigGet(c)
}

// HandleConfigSave submits the draft. Invalid drafts are refused unless
// force is set, since the device would otherwise clamp them silently.
// POST /api/console/v1/config/save
func (ctrl *ConsoleController) HandleConfigSave(c *gin.Context) {
	draft := ctrl.session.Config.Draft()
	if err := draft.Validate(); err != nil && c.Query("force") != "true" {
		c.JSON(http.StatusUnprocessableEntity, tool.FastReturnError(err.Error()))
		return
	}
	if err := ctrl.session.Config.Save(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, tool.FastReturnError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleDevicesRefresh re-reads the device's capture devices while the mic
// source is selected.
// POST /api/console/v1/devices/refresh
func (ctrl *ConsoleController) HandleDevicesRefresh(c *gin.Context) {
	if ctrl.session.Config.Draft().TxKind() != types.TxSourceMic {
		c.JSON(http.StatusConflict, tool.FastReturnError("Device list is only read while the mic source is selected"))
		return
	}
	ctrl.session.RefreshDevices()
	c.JSON(http.StatusAccepted, tool.FastReturnSuccess())
}
