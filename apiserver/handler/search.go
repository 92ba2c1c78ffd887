package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Search handles POST /api/remote/:service/search.
func (d *Deps) Search(c *gin.Context) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}

	svcCtx, ok := buildServiceContext(c, body)
	if !ok {
		return
	}
	svc, ok := d.loadService(c, svcCtx)
	if !ok {
		return
	}
	if !authenticate(c, svc, body) {
		return
	}

	results, err := svc.Search(c.Request.Context(), body.Query)
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}

	c.JSON(http.StatusOK, response{
		Status:  "success",
		Results: searchResultsToWire(results),
		Session: sessionRecord(svc, c.Param("service"), body.Profile),
	})
}
