package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Titles handles POST /api/remote/:service/titles.
func (d *Deps) Titles(c *gin.Context) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if body.identifier() == "" {
		writeError(c, http.StatusBadRequest, "", "missing required parameter: title_id")
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

	titles, err := svc.GetTitles(c.Request.Context())
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}

	wire := make([]titleWire, 0, len(titles))
	for _, t := range titles {
		wire = append(wire, titleToWire(t))
	}

	c.JSON(http.StatusOK, response{
		Status:  "success",
		Titles:  wire,
		Session: sessionRecord(svc, c.Param("service"), body.Profile),
	})
}
