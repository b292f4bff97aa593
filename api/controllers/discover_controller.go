package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/partyline-console/discover"
	"github.com/moyoez/partyline-console/tool"
)

// ScanFunc runs one discovery pass.
type ScanFunc func(ctx context.Context) ([]discover.Unit, error)

type DiscoverController struct {
	registry *discover.Registry
	scan     ScanFunc
}

func NewDiscoverController(registry *discover.Registry, scan ScanFunc) *DiscoverController {
	return &DiscoverController{registry: registry, scan: scan}
}

// HandleList returns the units found by recent scans.
// GET /api/console/v1/discover
func (ctrl *DiscoverController) HandleList(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.registry.List()))
}

// HandleScan scans the local networks now and returns the updated list.
// POST /api/console/v1/discover
func (ctrl *DiscoverController) HandleScan(c *gin.Context) {
	units, err := ctrl.scan(c.Request.Context())
	if err != nil {
		tool.DefaultLogger.Warnf("Discovery scan failed: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError(err.Error()))
		return
	}
	ctrl.registry.Record(units)
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.registry.List()))
}
