package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Chapters handles POST /api/remote/:service/chapters.
func (d *Deps) Chapters(c *gin.Context) {
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
	if len(titles) == 0 {
		writeError(c, http.StatusNotFound, "", "title not found")
		return
	}

	chapters, err := svc.GetChapters(c.Request.Context(), titles[0])
	if err != nil {
		translateError(c, c.Param("service"), err)
		return
	}

	c.JSON(http.StatusOK, response{
		Status:   "success",
		Chapters: chaptersToWire(chapters),
		Session:  sessionRecord(svc, c.Param("service"), body.Profile),
	})
}
