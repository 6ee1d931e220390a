// Package server exposes the HTTP API: chat (full and streamed), document
// upload, conversation history and health.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"querybot/internal/config"
	"querybot/internal/history"
	"querybot/internal/index"
	"querybot/internal/models"
	"querybot/internal/parser"
	"querybot/internal/retriever"
	"querybot/internal/router"
)

// Server wires the pipeline behind the HTTP API.
type Server struct {
	cfg    *config.Config
	router *router.Router
	idx    index.Index
	ret    *retriever.Retriever
	parser *parser.Parser
	store  *history.Store
	memory *history.Memory
	engine *gin.Engine
}

func New(cfg *config.Config, rt *router.Router, idx index.Index, ret *retriever.Retriever, p *parser.Parser, store *history.Store, memory *history.Memory) *Server {
	s := &Server{
		cfg:    cfg,
		router: rt,
		idx:    idx,
		ret:    ret,
		parser: p,
		store:  store,
		memory: memory,
	}
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)

	api := engine.Group("/api")
	api.POST("/message", s.handleMessage)
	api.POST("/stream", s.handleStream)
	api.POST("/upload", s.handleUpload)
	api.GET("/history", s.handleGetHistory)
	api.DELETE("/history", s.handleClearHistory)
	return engine
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run blocks serving the API on the configured address.
func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("Starting HTTP server")
	return s.engine.Run(s.cfg.Server.Addr)
}

type messageRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

func (r *messageRequest) session() string {
	if r.SessionID == "" {
		return "default"
	}
	return r.SessionID
}

func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", "message is required")
		return
	}

	content, strategy, err := s.router.Respond(c.Request.Context(), req.session(), req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "GENERATION_FAILED", "message": err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content":    content,
		"role":       models.RoleAssistant,
		"timestamp":  time.Now().UTC(),
		"strategy":   strategy,
		"session_id": req.session(),
	})
}

// handleStream serves the chat response as server-sent events. Each event is
// one JSON object; the stream always ends with "data: [DONE]".
func (s *Server) handleStream(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", "message is required")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := s.router.Stream(c.Request.Context(), req.session(), req.Message)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping unencodable stream event")
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "MISSING_FILE", "file is required")
		return
	}
	if fileHeader.Size > s.cfg.Server.MaxFileSize {
		badRequest(c, "FILE_TOO_LARGE",
			fmt.Sprintf("file exceeds maximum of %d bytes", s.cfg.Server.MaxFileSize))
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !s.parser.Supports(ext) {
		badRequest(c, "UNSUPPORTED_FORMAT",
			fmt.Sprintf("unsupported extension %q, supported: %s", ext, strings.Join(s.parser.SupportedExtensions(), ", ")))
		return
	}

	// Stored under a fresh name so concurrent uploads of the same filename
	// never clobber each other.
	stored := filepath.Join(s.cfg.Server.UploadsDir, uuid.NewString()+"_"+filepath.Base(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, stored); err != nil {
		serverError(c, "UPLOAD_FAILED", err)
		return
	}

	docs, err := s.parser.Parse(stored)
	if err != nil {
		badRequest(c, "PARSE_FAILED", err.Error())
		return
	}
	// Chunks must carry the user-visible filename, not the storage name.
	for i := range docs {
		docs[i].Metadata["source"] = fileHeader.Filename
	}

	ctx := c.Request.Context()
	if err := s.idx.AddDocuments(ctx, docs); err != nil {
		serverError(c, "INDEXING_FAILED", err)
		return
	}
	if err := s.idx.Persist(ctx); err != nil {
		log.Warn().Err(err).Msg("Index persist failed after upload")
	}
	if err := s.ret.RebuildSparse(ctx); err != nil {
		log.Warn().Err(err).Msg("Sparse rebuild failed after upload")
	}

	log.Info().Str("file", fileHeader.Filename).Int("chunks", len(docs)).Msg("Document indexed")
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"filename": fileHeader.Filename,
		"chunks":   len(docs),
	})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	msgs, err := s.store.Load()
	if err != nil {
		serverError(c, "HISTORY_READ_FAILED", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": msgs})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	if err := s.store.Clear(); err != nil {
		serverError(c, "HISTORY_CLEAR_FAILED", err)
		return
	}
	if session := c.Query("session_id"); session != "" {
		s.memory.Clear(session)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.idx.Count(c.Request.Context())
	status := "ok"
	if err != nil {
		status = "degraded"
		log.Warn().Err(err).Msg("Index unavailable for health check")
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"backend":   s.cfg.Index.Backend,
		"documents": count,
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

func serverError(c *gin.Context, code string, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": err.Error()},
	})
}
