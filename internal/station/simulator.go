package station

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hackops/internal/ndef"
	"hackops/internal/nfc"
)

// presentTag puts a simulated tag in front of the reader. An empty url
// presents a blank tag; resident keeps it there until removed.
func (s *Server) presentTag(c *gin.Context) {
	var req struct {
		URL      string `json:"url"`
		Resident bool   `json:"resident"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tag := nfc.NewSimTag(nil)
	if req.URL != "" {
		tag = nfc.NewURITag(req.URL)
	}
	if req.Resident {
		s.deps.Simulator.Place(tag)
	} else {
		s.deps.Simulator.Present(tag)
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "resident": req.Resident})
}

// tagState reports the resident tag's URI and how many transactions the
// reader has opened.
func (s *Server) tagState(c *gin.Context) {
	resp := gin.H{"resident": false, "connects": s.deps.Simulator.Connects()}
	if tag := s.deps.Simulator.Resident(); tag != nil {
		url, _ := ndef.DecodeURI(tag.Message())
		resp["resident"] = true
		resp["url"] = url
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) removeTag(c *gin.Context) {
	s.deps.Simulator.Remove()
	c.Status(http.StatusNoContent)
}

func (s *Server) setSupport(c *gin.Context) {
	var req struct {
		Supported *bool `json:"supported" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.deps.Simulator.SetSupported(*req.Supported)
	c.JSON(http.StatusOK, gin.H{"supported": *req.Supported})
}
