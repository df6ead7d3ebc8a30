// Package server is the embedded HTTP surface: thin JSON shims over
// the query layer, the job engine, and the enrichment clients. Binding
// the port doubles as single-instance enforcement.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gamehoard/internal/config"
	"gamehoard/internal/enrich"
	"gamehoard/internal/igdb"
	"gamehoard/internal/jobs"
	"gamehoard/internal/logging"
	"gamehoard/internal/popularity"
	"gamehoard/internal/settings"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

// Server wires the HTTP routes to the rest of the system.
type Server struct {
	cfg        *config.Config
	store      *store.LibraryStore
	settings   *settings.Registry
	engine     *jobs.Engine
	igdb       *igdb.Client
	protonDB   *enrich.ProtonDBClient
	metacritic *enrich.MetacriticClient
	popularity *popularity.Cache
	amazon     *sources.AmazonAdapter

	httpServer *http.Server
}

// New builds the server.
func New(cfg *config.Config, s *store.LibraryStore, reg *settings.Registry, engine *jobs.Engine,
	igdbClient *igdb.Client, protonDB *enrich.ProtonDBClient, metacritic *enrich.MetacriticClient,
	pop *popularity.Cache, amazon *sources.AmazonAdapter) *Server {
	return &Server{
		cfg:        cfg,
		store:      s,
		settings:   reg,
		engine:     engine,
		igdb:       igdbClient,
		protonDB:   protonDB,
		metacritic: metacritic,
		popularity: pop,
		amazon:     amazon,
	}
}

// Router builds the gin engine with all routes installed.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/api/health", s.handleHealth)

	api := r.Group("/api")
	if s.cfg.EnableAuth {
		api.Use(s.requireToken())
	}

	api.GET("/stats", s.handleStats)
	api.GET("/games", s.handleListGames)
	api.GET("/games/:id", s.handleGetGame)
	api.DELETE("/games/:id", s.handleDeleteGame)
	api.GET("/discover", s.handleDiscover)
	api.GET("/filters", s.handleFilterCounts)
	api.GET("/collections", s.handleListCollections)
	api.POST("/collections", s.handleCreateCollection)
	api.DELETE("/collections/:id", s.handleDeleteCollection)
	api.GET("/hidden", s.handleHiddenGames)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.POST("/settings/amazon/register", s.handleAmazonRegister)

	api.GET("/jobs", s.handleListJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.POST("/jobs/:id/cancel", s.handleCancelJob)
	api.POST("/sync/:source", s.handleSyncSource)
	api.POST("/enrich/:kind", s.handleEnrichKind)

	api.POST("/games/:id/igdb", s.handleBindIGDB)
	api.POST("/games/:id/hidden", s.handleSetHidden)
	api.POST("/games/:id/nsfw", s.handleSetNSFW)
	api.POST("/games/:id/cover", s.handleSetCover)
	api.POST("/games/:id/metacritic", s.handleSetMetacriticSlug)
	api.POST("/games/:id/protondb", s.handleSetProtonDBAppID)
	api.POST("/games/:id/priority", s.handleSetPriority)
	api.POST("/games/:id/rating", s.handleSetRating)

	api.POST("/games/bulk/hide", s.handleBulkHide)
	api.POST("/games/bulk/nsfw", s.handleBulkNSFW)
	api.POST("/games/bulk/delete", s.handleBulkDelete)
	api.POST("/games/bulk/collection", s.handleBulkCollection)

	return r
}

// Run binds the port and serves until ctx is done. A bind failure means
// another instance owns the port.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d unavailable (another instance running?): %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()
	logging.Boot("HTTP surface listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.HTTP("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// requireToken is the static-token auth stub: a bearer token matching
// the persisted secret key.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, err := s.settings.SecretKey()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth unavailable"})
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
