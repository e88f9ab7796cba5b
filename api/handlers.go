package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/screenshot"
	"github.com/rustyeddy/tradelog/tradingday"
	"github.com/rustyeddy/tradelog/watchlist"
)

func (s *Server) pair(c *gin.Context) (market.Pair, bool) {
	p, ok := market.Lookup(c.Param("pair"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair"})
	}
	return p, ok
}

// fail maps journal errors onto status codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, journal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, journal.ErrInvalidField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) listPairs(c *gin.Context) {
	sortKey, err := watchlist.ParseSortKey(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var filters watchlist.FilterSet
	for _, v := range strings.Split(c.Query("flags"), ",") {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		f, err := journal.ParseFlag(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters = filters.Toggle(f)
	}

	cutoff := s.Prefs.Cutoff()
	flags := s.Flags.Flags()
	latest := s.Engine.LatestDates(cutoff)
	res := watchlist.Build(s.Pairs, flags, latest, watchlist.Options{
		Filters:       filters,
		Sort:          sortKey,
		CutoffHourUTC: cutoff,
		Now:           s.Now(),
	})
	c.JSON(http.StatusOK, toBoard(res, flags, latest))
}

func (s *Server) getDraft(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toDraft(s.Engine, p))
}

// setDraft takes a JSON object of attribute name -> value, e.g.
// {"daily": "range bound", "dailySentiment": "flat"}.
func (s *Server) setDraft(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := make(journal.Patch, len(body))
	for name, v := range body {
		f, err := journal.ParseField(name)
		if err != nil {
			fail(c, err)
			return
		}
		patch[f] = v
	}
	for _, f := range journal.Fields() {
		v, ok := patch[f]
		if !ok {
			continue
		}
		if err := s.Engine.SetField(p.ID, f, v); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, toDraft(s.Engine, p))
}

func (s *Server) flushDraft(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	if err := s.Engine.Flush(c.Request.Context(), p.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(s.Engine, p))
}

func (s *Server) clearDraft(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	if err := s.Engine.Clear(c.Request.Context(), p.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(s.Engine, p))
}

// history lists past analyses of a pair. With ?day=YYYY-MM-DD it lists the
// records of that trading date instead, current bucket included.
func (s *Server) history(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	cutoff := s.Prefs.Cutoff()

	day := c.Query("day")
	if day == "" {
		c.JSON(http.StatusOK, gin.H{"analyses": toAnalyses(s.Engine.History(p.ID), cutoff)})
		return
	}

	from, to, err := tradingday.Bounds(day, cutoff)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid day format, use YYYY-MM-DD"})
		return
	}
	list, err := s.Store.ListAnalyses(c.Request.Context(), journal.Filter{PairID: p.ID, From: from, To: to})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": toAnalyses(list, cutoff)})
}

func (s *Server) getAnalysis(c *gin.Context) {
	a, err := s.Store.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	cutoff := s.Prefs.Cutoff()

	if c.Query("format") == "org" {
		opt := journal.ReportOptions{PairName: market.Name(a.PairID), CutoffHourUTC: cutoff}
		if s.Blobs != nil {
			opt.Screenshot = screenshot.Resolver(c.Request.Context(), s.Blobs, s.ScreenshotTTL)
		}
		c.String(http.StatusOK, journal.FormatAnalysisOrg(a, opt))
		return
	}
	c.JSON(http.StatusOK, toAnalysis(a, cutoff))
}

type fieldEdit struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

func (s *Server) patchAnalysis(c *gin.Context) {
	var body fieldEdit
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := journal.ParseField(body.Field)
	if err != nil {
		fail(c, err)
		return
	}

	id := c.Param("id")
	if err := s.Engine.UpdateHistorical(c.Request.Context(), id, f, body.Value); err != nil {
		fail(c, err)
		return
	}
	a, err := s.Store.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAnalysis(a, s.Prefs.Cutoff()))
}

func (s *Server) deleteAnalysis(c *gin.Context) {
	if err := s.Engine.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setFlag(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	var body struct {
		Flag string `json:"flag"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Flags.Set(p.ID, journal.Flag(body.Flag)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settingJSON{PairID: p.ID, Flag: string(s.Flags.Flag(p.ID))})
}

func (s *Server) getCutoff(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cutoff_hour_utc": s.Prefs.Cutoff()})
}

func (s *Server) setCutoff(c *gin.Context) {
	var body struct {
		CutoffHourUTC *int `json:"cutoff_hour_utc"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CutoffHourUTC == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cutoff_hour_utc is required"})
		return
	}
	h, err := s.Prefs.SetCutoff(*body.CutoffHourUTC)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cutoff_hour_utc": h})
}

func (s *Server) timeframe(c *gin.Context) (journal.Field, bool) {
	tf := journal.Timeframe(c.Param("timeframe"))
	for _, v := range journal.Timeframes {
		if v == tf {
			return journal.ScreenshotField(tf), true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown timeframe"})
	return journal.Field{}, false
}

// uploadScreenshot stores the multipart "file" as the screenshot of a
// timeframe in the current draft, replacing any previous one.
func (s *Server) uploadScreenshot(c *gin.Context) {
	if s.Blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screenshot storage is not configured"})
		return
	}
	p, ok := s.pair(c)
	if !ok {
		return
	}
	field, ok := s.timeframe(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	old := s.Engine.Draft(p.ID).Get(field)
	key, err := screenshot.Replace(ctx, s.Blobs, old, field, f, header.Header.Get("Content-Type"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Engine.SetField(p.ID, field, key); err != nil {
		fail(c, err)
		return
	}
	url, err := screenshot.Resolve(ctx, s.Blobs, key, s.ScreenshotTTL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "url": url})
}

func (s *Server) removeScreenshot(c *gin.Context) {
	p, ok := s.pair(c)
	if !ok {
		return
	}
	field, ok := s.timeframe(c)
	if !ok {
		return
	}
	if s.Blobs != nil {
		screenshot.Discard(c.Request.Context(), s.Blobs, s.Engine.Draft(p.ID).Get(field))
	}
	if err := s.Engine.SetField(p.ID, field, ""); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(s.Engine, p))
}

// serveBlob streams a blob behind a signed link.
func (s *Server) serveBlob(c *gin.Context) {
	if s.Blobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := s.Blobs.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	rc, contentType, err := s.Blobs.Open(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	defer rc.Close()

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=300")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		s.Logger.Warn("serve blob", "key", key, "error", err)
	}
}

// webhook accepts any JSON payload and logs it.
func (s *Server) webhook(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JSON"})
		return
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JSON"})
		return
	}
	s.Logger.Info("webhook payload received", "payload", payload)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
