package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// stream pushes a full snapshot of analyses and pair settings as server-sent
// events every time either changes. The first events carry the current
// state.
func (s *Server) stream(c *gin.Context) {
	ctx := c.Request.Context()

	analyses, err := s.Store.SubscribeAnalyses(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	settings, err := s.Store.SubscribePairSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for analyses != nil || settings != nil {
		select {
		case <-ctx.Done():
			return
		case items, ok := <-analyses:
			if !ok {
				analyses = nil
				continue
			}
			c.SSEvent("analyses", toAnalyses(items, s.Prefs.Cutoff()))
		case items, ok := <-settings:
			if !ok {
				settings = nil
				continue
			}
			c.SSEvent("pair_settings", toSettings(items))
		}
		c.Writer.Flush()
	}
}
