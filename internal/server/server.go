// Package server exposes the conversation memory service over HTTP. Handlers
// are thin adapters around the store, ingestor, and composer.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/convomem/convomem/internal/apperr"
	"github.com/convomem/convomem/internal/compose"
	"github.com/convomem/convomem/internal/ingest"
	"github.com/convomem/convomem/internal/logger"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/store"
)

const askTopKMax = 20

type Server struct {
	log      *logger.Logger
	store    store.Store
	ingestor *ingest.Ingestor
	composer *compose.Composer
}

func New(log *logger.Logger, st store.Store, ing *ingest.Ingestor, comp *compose.Composer) *Server {
	return &Server{
		log:      log.With("component", "server"),
		store:    st,
		ingestor: ing,
		composer: comp,
	}
}

// Router builds the gin engine. mode "prod"/"production" switches gin to
// release mode.
func (s *Server) Router(mode string) *gin.Engine {
	switch strings.ToLower(mode) {
	case "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/conversations", s.listConversations)
	r.GET("/chat/history", s.chatHistory)
	r.POST("/chat/new", s.chatNew)
	r.POST("/chat/reset", s.chatReset)
	r.POST("/ingest", s.ingest)
	r.POST("/ask", s.ask)
	r.POST("/chat/send", s.chatSend)
	return r
}

// Run serves the router until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr, mode string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(mode),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// writeError maps stage-tagged errors to status codes: validation is the
// caller's fault, everything else is a 500 naming the failed stage.
func (s *Server) writeError(c *gin.Context, err error) {
	stage := apperr.StageOf(err)
	body := gin.H{"error": err.Error()}
	if stage != "" {
		body["stage"] = string(stage)
	}
	if stage == apperr.StageValidation {
		c.JSON(http.StatusBadRequest, body)
		return
	}
	s.log.Error("request failed", "path", c.FullPath(), "stage", string(stage), "err", err)
	c.JSON(http.StatusInternalServerError, body)
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listConversations(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		s.writeError(c, apperr.Validation("user_id is required"))
		return
	}
	limit := intQuery(c, "limit", 50)

	convos, err := s.store.Conversations(c.Request.Context(), userID, limit)
	if err != nil {
		s.writeError(c, apperr.Retrieval(err))
		return
	}
	if convos == nil {
		convos = []model.ConversationSummary{}
	}
	c.JSON(http.StatusOK, convos)
}

func (s *Server) chatHistory(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	conversationID := strings.TrimSpace(c.Query("conversation_id"))
	if userID == "" || conversationID == "" {
		s.writeError(c, apperr.Validation("user_id and conversation_id are required"))
		return
	}
	limit := intQuery(c, "limit", 500)

	turns, err := s.store.Turns(c.Request.Context(), userID, conversationID, limit)
	if err != nil {
		s.writeError(c, apperr.Retrieval(err))
		return
	}
	if turns == nil {
		turns = []model.StoredTurn{}
	}
	c.JSON(http.StatusOK, turns)
}

type chatNewReq struct {
	UserID string `json:"user_id" binding:"required"`
}

func (s *Server) chatNew(c *gin.Context) {
	var req chatNewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("invalid request: %v", err))
		return
	}
	if err := s.store.EnsureUser(c.Request.Context(), req.UserID); err != nil {
		s.writeError(c, apperr.Retrieval(err))
		return
	}
	cid := "c_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	c.JSON(http.StatusOK, gin.H{"conversation_id": cid})
}

type chatResetReq struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
}

func (s *Server) chatReset(c *gin.Context) {
	var req chatResetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("invalid request: %v", err))
		return
	}
	if err := s.store.ResetConversation(c.Request.Context(), req.UserID, req.ConversationID); err != nil {
		s.writeError(c, apperr.Retrieval(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ingestReq struct {
	UserID         string       `json:"user_id" binding:"required"`
	ConversationID string       `json:"conversation_id" binding:"required"`
	Turns          []model.Turn `json:"turns" binding:"required"`
	TestGroup      *int         `json:"test_group"`
}

func (s *Server) ingest(c *gin.Context) {
	var req ingestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	ctx := c.Request.Context()
	inserted, err := s.ingestor.IngestTurns(ctx, req.UserID, req.ConversationID, req.Turns)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.store.LogEvent(ctx, req.UserID, "INGEST_WINDOWS", map[string]interface{}{
		"conversation_id": req.ConversationID,
		"windows":         inserted,
		"test_group":      testGroup(req.TestGroup),
	})
	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

type askReq struct {
	UserID   string `json:"user_id" binding:"required"`
	Question string `json:"question" binding:"required"`
	// ConversationID is accepted for wire compatibility; retrieval is
	// user-scoped, not conversation-scoped.
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
	Hybrid         bool   `json:"hybrid"`
	TestGroup      *int   `json:"test_group"`
}

type askResp struct {
	Answer   string                `json:"answer"`
	Snippets []model.RankedSnippet `json:"snippets"`
}

func (s *Server) ask(c *gin.Context) {
	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("invalid request: %v", err))
		return
	}
	if req.TopK < 0 || req.TopK > askTopKMax {
		s.writeError(c, apperr.Validation("top_k must be in [1,%d]", askTopKMax))
		return
	}

	ctx := c.Request.Context()
	comp := s.composer.WithTopK(req.TopK)
	res, err := comp.Answer(ctx, req.UserID, req.Question, askMode(req.Hybrid))
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.store.LogEvent(ctx, req.UserID, "RAG_ANSWER", map[string]interface{}{
		"top_k":      comp.TopK(),
		"hybrid":     req.Hybrid,
		"hits":       windowIDs(res.Snippets),
		"test_group": testGroup(req.TestGroup),
	})
	c.JSON(http.StatusOK, askResp{Answer: res.Answer, Snippets: snippets(res.Snippets)})
}

type chatSendReq struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
	TestGroup      *int   `json:"test_group"`
	Hybrid         bool   `json:"hybrid"`
}

// chatSend is the live-chat turn: persist the user's message, windowize,
// answer (the test_group 0 control arm skips retrieval), persist the reply,
// windowize again.
func (s *Server) chatSend(c *gin.Context) {
	var req chatSendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	ctx := c.Request.Context()
	if err := s.ingestor.AppendTurn(ctx, req.UserID, req.ConversationID, model.RoleUser, req.Content); err != nil {
		s.writeError(c, err)
		return
	}

	var (
		answer string
		snips  []model.RankedSnippet
	)
	if testGroup(req.TestGroup) == 0 {
		a, err := s.composer.Direct(ctx, req.Content)
		if err != nil {
			s.writeError(c, err)
			return
		}
		answer = a
	} else {
		res, err := s.composer.Answer(ctx, req.UserID, req.Content, askMode(req.Hybrid))
		if err != nil {
			s.writeError(c, err)
			return
		}
		answer = res.Answer
		snips = res.Snippets
	}

	if err := s.ingestor.AppendTurn(ctx, req.UserID, req.ConversationID, model.RoleAssistant, answer); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, askResp{Answer: answer, Snippets: snippets(snips)})
}

func askMode(hybrid bool) compose.Mode {
	if hybrid {
		return compose.ModeHybrid
	}
	return compose.ModeVector
}

func testGroup(v *int) int {
	if v == nil {
		return 1
	}
	return *v
}

func snippets(in []model.RankedSnippet) []model.RankedSnippet {
	if in == nil {
		return []model.RankedSnippet{}
	}
	return in
}

func windowIDs(in []model.RankedSnippet) []string {
	ids := make([]string, 0, len(in))
	for _, s := range in {
		ids = append(ids, s.WindowID)
	}
	return ids
}

func intQuery(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
