package station

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/audit"
	"hackops/internal/auth"
	"hackops/internal/identify"
	"hackops/internal/points"
	"hackops/internal/settings"
)

const operatorRole = "organizer"

func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		OperatorID string `json:"operator_id" binding:"required"`
		Key        string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !auth.KeyMatches(req.Key, s.deps.OperatorKey) {
		s.log.Warn("operator key rejected", zap.String("operator", req.OperatorID), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
		return
	}
	s.respondTokens(c, req.OperatorID, http.StatusCreated)
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := s.deps.Issuer.Parse(req.RefreshToken)
	if err != nil || claims.Kind != auth.KindRefresh {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	s.respondTokens(c, claims.Subject, http.StatusOK)
}

func (s *Server) respondTokens(c *gin.Context, operator string, status int) {
	tokens, err := s.deps.Issuer.Pair(operator, operatorRole)
	if err != nil {
		s.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (s *Server) getServerURL(c *gin.Context) {
	url, err := s.deps.Settings.ServerURL(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server_url": url})
}

func (s *Server) putServerURL(c *gin.Context) {
	var req struct {
		ServerURL string `json:"server_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.deps.Settings.SetServerURL(c.Request.Context(), req.ServerURL); err != nil {
		if errors.Is(err, settings.ErrInvalidURL) {
			badRequest(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("server url changed", zap.String("operator", auth.Operator(c)), zap.String("server_url", req.ServerURL))
	c.JSON(http.StatusOK, gin.H{"server_url": req.ServerURL})
}

func (s *Server) listMethods(c *gin.Context) {
	type method struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]method, 0, len(s.deps.Methods))
	for _, m := range s.deps.Methods {
		out = append(out, method{ID: m.ID(), Name: m.Name()})
	}
	c.JSON(http.StatusOK, gin.H{"methods": out})
}

func (s *Server) searchUsers(c *gin.Context) {
	users, err := s.deps.Directory.Users(c.Request.Context())
	if err != nil {
		fail(c, remote(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": identify.Filter(users, c.Query("q"))})
}

func (s *Server) getUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, errors.New("user id must be a positive integer"))
		return
	}
	user, err := s.deps.Directory.User(c.Request.Context(), id)
	if err != nil {
		fail(c, remote(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := s.deps.Directory.Events(c.Request.Context())
	if err != nil {
		fail(c, remote(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) awardPoints(c *gin.Context) {
	var req struct {
		UserID   int            `json:"user_id"`
		Amount   int            `json:"amount"`
		Reason   string         `json:"reason"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := s.deps.Points.Award(c.Request.Context(), apiclient.AwardRequest{
		UserID:   req.UserID,
		Amount:   req.Amount,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	if err != nil {
		if points.IsInvalid(err) {
			badRequest(c, err)
			return
		}
		fail(c, remote(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "amount": req.Amount, "status": "awarded"})
}

func (s *Server) listAudit(c *gin.Context) {
	if s.deps.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log not configured"})
		return
	}
	f := audit.Filter{BypassedOnly: c.Query("bypassed") == "true"}
	for key, dst := range map[string]*int{
		"user_id":  &f.UserID,
		"event_id": &f.EventID,
		"limit":    &f.Limit,
		"offset":   &f.Offset,
	} {
		if v := c.Query(key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				badRequest(c, errors.New(key+" must be an integer"))
				return
			}
			*dst = parsed
		}
	}
	records, err := s.deps.Audit.List(c.Request.Context(), f)
	if err != nil {
		s.log.Error("audit list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
