package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/types"
)

// Server exposes a byte cache over HTTP.
type Server struct {
	cache *cache.ShardedCache[string, []byte]
	stats *types.Stats
	token string
	log   logrus.FieldLogger
	r     *gin.Engine
}

/*
New builds the router. stats may be nil when the cache engine does not count
events. An empty token disables authentication.
*/
func New(c *cache.ShardedCache[string, []byte], stats *types.Stats, token string, log logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{cache: c, stats: stats, token: token, log: log, r: r}
	r.Use(s.logRequests, gin.Recovery())

	// Public endpoints (no auth)
	r.GET("/health", s.health)

	api := r.Group("/")
	api.Use(s.auth)
	{
		api.GET("/keys", s.listKeys)
		api.DELETE("/keys", s.purge)
		api.GET("/keys/:key", s.getKey)
		api.PUT("/keys/:key", s.putKey)
		api.DELETE("/keys/:key", s.deleteKey)
		api.GET("/keys/:key/ttl", s.ttl)

		api.POST("/sweep", s.sweep)
		api.GET("/stats", s.statsSnapshot)
	}
	return s
}

// Handler returns the HTTP handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.WithFields(logrus.Fields{
		"method":  c.Request.Method,
		"path":    c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start),
		"client":  c.ClientIP(),
	}).Debug("api request")
}

func (s *Server) auth(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Next()
}

// Handlers

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"entries": s.cache.Len(),
	})
}

// getKey reads through the loader when the cache has one.
func (s *Server) getKey(c *gin.Context) {
	key := c.Param("key")

	if s.cache.Engine().Loader == nil {
		v, ok := s.cache.Get(key)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", v)
		return
	}

	v, err := s.cache.GetOrLoad(c.Request.Context(), key)
	switch {
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err != nil:
		s.log.WithError(err).WithField("key", key).Warn("load failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "backing store unavailable"})
	default:
		c.Data(http.StatusOK, "application/octet-stream", v)
	}
}

// putKey stores the request body. ?ttl= takes a Go duration; without it the
// default TTL applies, and a ttl <= 0 deletes the key.
func (s *Server) putKey(c *gin.Context) {
	ttl := s.cache.Engine().DefaultTTL()
	if raw, ok := c.GetQuery("ttl"); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
		ttl = d
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	_, replaced := s.cache.PutWithTTL(c.Param("key"), body, ttl)
	if replaced {
		c.Status(http.StatusNoContent)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) deleteKey(c *gin.Context) {
	if !s.cache.Delete(c.Param("key")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ttl(c *gin.Context) {
	d := s.cache.TTL(c.Param("key"))
	if d == -2 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	resp := gin.H{"ttl_ms": d.Milliseconds()}
	if d == -1 {
		resp["ttl_ms"] = -1
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listKeys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": s.cache.Keys()})
}

func (s *Server) purge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"purged": s.cache.Purge()})
}

func (s *Server) sweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reclaimed": s.cache.Sweep()})
}

type statsResponse struct {
	types.StatsSnapshot
	HitRatio float64 `json:"hit_ratio"`
	Entries  int     `json:"entries"`
	Capacity int     `json:"capacity"`
	Shards   int     `json:"shards"`
}

func (s *Server) statsSnapshot(c *gin.Context) {
	resp := statsResponse{
		Entries:  s.cache.Len(),
		Capacity: s.cache.Capacity(),
		Shards:   s.cache.Shards(),
	}
	if s.stats != nil {
		resp.StatsSnapshot = s.stats.Snapshot()
		resp.HitRatio = resp.StatsSnapshot.HitRatio()
	}
	c.JSON(http.StatusOK, resp)
}
