package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gamehoard/internal/igdb"
	"gamehoard/internal/jobs"
	"gamehoard/internal/logging"
	"gamehoard/internal/rating"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

// Settings keys whose values are never echoed back.
var secretSettings = map[string]bool{
	"steam_api_key":         true,
	"igdb_client_secret":    true,
	"itch_api_key":          true,
	"humble_session_cookie": true,
	"battlenet_cookie":      true,
	"ea_bearer_token":       true,
	"amazon_oauth_tokens":   true,
	"secret_key":            true,
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) queryOptions(c *gin.Context) store.QueryOptions {
	opts := store.QueryOptions{
		Genre:         c.Query("genre"),
		Store:         c.Query("store"),
		Search:        c.Query("search"),
		IncludeHidden: c.Query("include_hidden") == "true",
		IncludeNSFW:   c.Query("include_nsfw") == "true",
	}
	if raw := c.Query("filters"); raw != "" {
		opts.Filters = strings.Split(raw, ",")
	}
	if raw := c.Query("label"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			opts.LabelID = id
		}
	}
	return opts
}

func (s *Server) handleListGames(c *gin.Context) {
	games, err := s.store.QueryGames(s.queryOptions(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	groups := store.GroupGames(games)
	c.JSON(http.StatusOK, gin.H{"groups": groups, "total": len(groups)})
}

func (s *Server) handleGetGame(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	g, err := s.store.GetGame(id)
	if errors.Is(err, store.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}

	labels, _ := s.store.LabelsForGame(id)
	news, _ := s.store.NewsForGame(id, 10)
	updates, _ := s.store.UpdatesForGame(id, 10)
	c.JSON(http.StatusOK, gin.H{
		"game":    g,
		"labels":  labels,
		"news":    news,
		"updates": updates,
	})
}

func (s *Server) handleDeleteGame(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteGame(id); err != nil {
		if errors.Is(err, store.ErrGameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDiscover(c *gin.Context) {
	games, err := s.store.QueryGames(s.queryOptions(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var igdbIDs []int64
	byIGDB := make(map[int64]*store.Game)
	for _, g := range games {
		if g.IGDBID != nil {
			igdbIDs = append(igdbIDs, *g.IGDBID)
			byIGDB[*g.IGDBID] = g
		}
	}

	popTypes := []int64{1}
	if raw := c.Query("types"); raw != "" {
		popTypes = popTypes[:0]
		for _, part := range strings.Split(raw, ",") {
			if t, err := strconv.ParseInt(part, 10, 64); err == nil {
				popTypes = append(popTypes, t)
			}
		}
	}

	rows, err := s.popularity.Get(c.Request.Context(), popTypes, igdbIDs)
	if err != nil {
		s.serverError(c, err)
		return
	}

	type ranked struct {
		Game  *store.Game `json:"game"`
		Type  int64       `json:"popularity_type"`
		Value float64     `json:"popularity_value"`
	}
	out := make([]ranked, 0, len(rows))
	for _, r := range rows {
		if g, ok := byIGDB[r.IGDBID]; ok {
			out = append(out, ranked{Game: g, Type: r.Type, Value: r.Value})
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (s *Server) handleFilterCounts(c *gin.Context) {
	var active []string
	if raw := c.Query("active"); raw != "" {
		active = strings.Split(raw, ",")
	}
	counts, err := s.store.FilterCounts(active)
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts, "filters": store.FilterIDs()})
}

func (s *Server) handleListCollections(c *gin.Context) {
	labels, err := s.store.ListLabels()
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

func (s *Server) handleCreateCollection(c *gin.Context) {
	var body struct {
		Name  string `json:"name" binding:"required"`
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.store.CreateLabel(body.Name, store.LabelTypeCollection, body.Icon, body.Color)
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (s *Server) handleDeleteCollection(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad label id"})
		return
	}
	if err := s.store.DeleteLabel(id); err != nil {
		if errors.Is(err, store.ErrLabelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "label not found or protected"})
			return
		}
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleHiddenGames(c *gin.Context) {
	games, err := s.store.QueryGames(store.QueryOptions{IncludeHidden: true, IncludeNSFW: true})
	if err != nil {
		s.serverError(c, err)
		return
	}
	hidden := games[:0]
	for _, g := range games {
		if g.Hidden {
			hidden = append(hidden, g)
		}
	}
	c.JSON(http.StatusOK, gin.H{"games": hidden})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	all, err := s.store.AllSettings()
	if err != nil {
		s.serverError(c, err)
		return
	}
	masked := make(map[string]interface{}, len(all))
	for k, v := range all {
		if secretSettings[k] {
			masked[k] = gin.H{"set": v != ""}
		} else {
			masked[k] = v
		}
	}
	c.JSON(http.StatusOK, masked)
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for k, v := range body {
		var err error
		if v == "" {
			err = s.settings.Delete(k)
		} else {
			err = s.settings.Set(k, v)
		}
		if err != nil {
			s.serverError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleAmazonRegister drives the two-step PKCE device registration.
// Without an auth code it issues a fresh verifier/challenge pair; with
// one it completes the exchange and persists the token pair.
func (s *Server) handleAmazonRegister(c *gin.Context) {
	var body struct {
		AuthCode     string `json:"auth_code"`
		CodeVerifier string `json:"code_verifier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.AuthCode == "" {
		pkce, err := sources.NewPKCEChallenge()
		if err != nil {
			s.serverError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code_verifier":  pkce.Verifier,
			"code_challenge": pkce.Challenge,
		})
		return
	}

	if body.CodeVerifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code_verifier required with auth_code"})
		return
	}
	if s.amazon == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "amazon adapter unavailable"})
		return
	}

	err := s.amazon.RegisterDevice(c.Request.Context(), body.AuthCode, &sources.PKCEChallenge{Verifier: body.CodeVerifier})
	if errors.Is(err, sources.ErrAuthExpired) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "registration rejected"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListJobs(c *gin.Context) {
	active, err := s.store.ActiveJobs()
	if err != nil {
		s.serverError(c, err)
		return
	}
	recent, err := s.store.RecentJobs(20)
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active, "recent": recent})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Param("id"))
	if errors.Is(err, store.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	err := s.engine.Cancel(c.Param("id"))
	if errors.Is(err, store.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSyncSource(c *gin.Context) {
	s.startJob(c, jobs.StoreSyncType(c.Param("source")))
}

var enrichKinds = map[string]string{
	"igdb":       jobs.TypeIGDBSync,
	"metacritic": jobs.TypeMetacriticSync,
	"protondb":   jobs.TypeProtonDBSync,
	"news":       jobs.TypeNewsSync,
	"status":     jobs.TypeStatusSync,
	"updates":    jobs.TypeUpdateSync,
}

func (s *Server) handleEnrichKind(c *gin.Context) {
	jobType, ok := enrichKinds[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown enrichment kind"})
		return
	}
	s.startJob(c, jobType)
}

func (s *Server) startJob(c *gin.Context, jobType string) {
	force := c.Query("force") == "true"
	id, err := s.engine.Start(c.Request.Context(), jobType, force)
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"success": false, "job_id": id, "error": "already running"})
	case errors.Is(err, jobs.ErrUnknownJobType):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown job type"})
	case err != nil:
		s.serverError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "job_id": id})
	}
}

func (s *Server) handleBindIGDB(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		IGDBID int64 `json:"igdb_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Zero clears the binding.
	if body.IGDBID == 0 {
		if err := s.store.ClearIGDBBinding(id); err != nil {
			s.serverError(c, err)
			return
		}
		if err := rating.Recompute(s.store, id); err != nil {
			s.serverError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	g, err := s.store.GetGame(id)
	if errors.Is(err, store.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}

	match, err := s.igdb.GameByID(c.Request.Context(), body.IGDBID)
	if errors.Is(err, sources.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "igdb record not found"})
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}

	binding := igdb.BuildBinding(match, g.Genres)
	if err := s.store.UpdateIGDBBinding(id, binding); err != nil {
		s.serverError(c, err)
		return
	}
	if err := rating.Recompute(s.store, id); err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSetHidden(c *gin.Context) {
	s.setGameFlag(c, s.store.SetHidden, "hidden")
}

func (s *Server) handleSetNSFW(c *gin.Context) {
	s.setGameFlag(c, s.store.SetNSFW, "nsfw")
}

func (s *Server) setGameFlag(c *gin.Context, set func(int64, bool) error, field string) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body map[string]bool
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, present := body[field]
	if !present {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing field: " + field})
		return
	}
	if err := set(id, value); err != nil {
		s.gameWriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSetCover(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetCoverOverride(id, body.URL); err != nil {
		s.gameWriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSetMetacriticSlug(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		Slug string `json:"slug" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Fetch immediately; the slug is kept even when the scrape fails so
	// the next sync can retry it.
	scores, err := s.metacritic.Fetch(c.Request.Context(), body.Slug)
	if err != nil {
		logging.EnrichDebug("Metacritic fetch for %q failed: %v", body.Slug, err)
		scores = nil
	}
	var critic, user *float64
	if scores != nil {
		critic, user = scores.Critic, scores.User
	}
	if err := s.store.SetMetacritic(id, critic, user, body.Slug); err != nil {
		s.gameWriteError(c, err)
		return
	}
	if err := rating.Recompute(s.store, id); err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fetched": scores != nil})
}

func (s *Server) handleSetProtonDBAppID(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		SteamAppID int64 `json:"steam_app_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetSteamAppID(id, body.SteamAppID); err != nil {
		s.gameWriteError(c, err)
		return
	}

	result, err := s.protonDB.Fetch(c.Request.Context(), body.SteamAppID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "fetched": false})
		return
	}
	if err := s.store.SetProtonDB(id, result); err != nil {
		s.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fetched": true, "tier": result.Tier})
}

func (s *Server) handleSetPriority(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		Priority *int64 `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetPriority(id, body.Priority); err != nil {
		s.gameWriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSetRating(c *gin.Context) {
	id, ok := s.gameID(c)
	if !ok {
		return
	}
	var body struct {
		Rating *float64 `json:"rating"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetPersonalRating(id, body.Rating); err != nil {
		s.gameWriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type bulkRequest struct {
	IDs     []int64 `json:"ids" binding:"required"`
	Value   bool    `json:"value"`
	LabelID int64   `json:"label_id"`
}

func (s *Server) handleBulkHide(c *gin.Context) {
	s.bulkApply(c, func(body bulkRequest, id int64) error {
		return s.store.SetHidden(id, body.Value)
	})
}

func (s *Server) handleBulkNSFW(c *gin.Context) {
	s.bulkApply(c, func(body bulkRequest, id int64) error {
		return s.store.SetNSFW(id, body.Value)
	})
}

func (s *Server) handleBulkDelete(c *gin.Context) {
	s.bulkApply(c, func(body bulkRequest, id int64) error {
		return s.store.DeleteGame(id)
	})
}

func (s *Server) handleBulkCollection(c *gin.Context) {
	s.bulkApply(c, func(body bulkRequest, id int64) error {
		if body.LabelID == 0 {
			return errors.New("label_id required")
		}
		return s.store.AssignLabel(body.LabelID, id, false)
	})
}

// bulkApply runs one mutation per id, skip-and-continue: a missing row
// does not abort the rest.
func (s *Server) bulkApply(c *gin.Context, apply func(bulkRequest, int64) error) {
	var body bulkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	succeeded, failed := 0, 0
	for _, id := range body.IDs {
		if err := apply(body, id); err != nil {
			logging.Get(logging.CategoryHTTP).Warn("Bulk op on game %d: %v", id, err)
			failed++
			continue
		}
		succeeded++
	}
	c.JSON(http.StatusOK, gin.H{"success": failed == 0, "succeeded": succeeded, "failed": failed})
}

func (s *Server) gameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad game id"})
		return 0, false
	}
	return id, true
}

func (s *Server) gameWriteError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	s.serverError(c, err)
}

func (s *Server) serverError(c *gin.Context, err error) {
	logging.Get(logging.CategoryHTTP).Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
