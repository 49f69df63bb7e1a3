package station

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"hackops/internal/auth"
	"hackops/internal/checkin"
	"hackops/internal/identify"
)

const sessionKey = "session"

// remote marks a directory failure as a remote failure.
func remote(err error) error {
	if checkin.Kind(err) == "internal" {
		return fmt.Errorf("%w: %w", checkin.ErrRemote, err)
	}
	return err
}

func (s *Server) withSession(h func(*gin.Context, *checkin.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.deps.Sessions.Get(c.Param("id"), auth.Operator(c))
		if err != nil {
			fail(c, err)
			return
		}
		h(c, sess)
	}
}

func (s *Server) createSession(c *gin.Context) {
	var req struct {
		EventID int `json:"event_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	sess := s.deps.Sessions.Create(c.Request.Context(), auth.Operator(c))
	s.trackSessions()
	if req.EventID != 0 {
		if _, err := sess.SetEvent(req.EventID); err != nil {
			s.deps.Sessions.Delete(sess.ID())
			s.trackSessions()
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess.Snapshot()})
}

func (s *Server) deleteSession(c *gin.Context, sess *checkin.Session) {
	if !s.deps.Sessions.Delete(sess.ID()) {
		fail(c, checkin.ErrSessionNotFound)
		return
	}
	s.trackSessions()
	c.Status(http.StatusNoContent)
}

func (s *Server) trackSessions() {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Set(float64(s.deps.Sessions.Len()))
	}
}

func (s *Server) getSession(c *gin.Context, sess *checkin.Session) {
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

func (s *Server) selectUser(c *gin.Context, sess *checkin.Session) {
	var req struct {
		Method string `json:"method" binding:"required"`
		Query  string `json:"query"`
		UserID int    `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respondStep(c, func(ctx context.Context) (checkin.Snapshot, error) {
		return sess.Select(ctx, req.Method, identify.Input{Query: req.Query, UserID: req.UserID})
	})
}

func (s *Server) clearUser(c *gin.Context, sess *checkin.Session) {
	c.JSON(http.StatusOK, gin.H{"session": sess.ClearUser()})
}

func (s *Server) setEvent(c *gin.Context, sess *checkin.Session) {
	var req struct {
		EventID int `json:"event_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respondStep(c, func(context.Context) (checkin.Snapshot, error) {
		return sess.SetEvent(req.EventID)
	})
}

func (s *Server) writeTag(c *gin.Context, sess *checkin.Session) {
	s.respondStep(c, sess.WriteTag)
}

func (s *Server) verifyTag(c *gin.Context, sess *checkin.Session) {
	s.respondStep(c, sess.VerifyTag)
}

func (s *Server) markAttendance(c *gin.Context, sess *checkin.Session) {
	s.respondStep(c, sess.MarkAttendance)
}

func (s *Server) respondStep(c *gin.Context, step func(context.Context) (checkin.Snapshot, error)) {
	snap, err := step(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": checkin.Kind(err), "session": snap})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}
