package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/gin-gonic/gin"
)

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, api.PingResponse{Status: "OK"})
}

func (s *Server) register(c *gin.Context) {
	var body api.Credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	user, err := s.users.Register(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.UserName})
}

func (s *Server) login(c *gin.Context) {
	var body api.Credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	token, err := s.users.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (s *Server) snapshot(c *gin.Context) {
	snap, err := s.sync.Snapshot(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) incremental(c *gin.Context) {
	var body api.IncrementalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	if body.ClientID == "" {
		body.ClientID = clientIDFromContext(c)
	}
	resp, err := s.sync.Incremental(c.Request.Context(), userIDFromContext(c), &body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) status(c *gin.Context) {
	st, err := s.sync.Status(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) create(c *gin.Context) {
	e, ok := s.entityParam(c)
	if !ok {
		return
	}
	var body api.RecordEnvelope
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	rec, err := s.sync.Create(c.Request.Context(), userIDFromContext(c), clientIDFromContext(c), e, body.Record)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.RecordEnvelope{Record: rec})
}

func (s *Server) update(c *gin.Context) {
	e, ok := s.entityParam(c)
	if !ok {
		return
	}
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var body api.RecordEnvelope
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	rec, err := s.sync.Update(c.Request.Context(), userIDFromContext(c), clientIDFromContext(c), e, id, body.Record)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RecordEnvelope{Record: rec})
}

func (s *Server) delete(c *gin.Context) {
	e, ok := s.entityParam(c)
	if !ok {
		return
	}
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	if err := s.sync.Delete(c.Request.Context(), userIDFromContext(c), clientIDFromContext(c), e, id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// paperPDF redirects to the PDF. Clients that do not follow redirects read
// the Location header.
func (s *Server) paperPDF(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	url, err := s.sync.PaperPDFURL(c.Request.Context(), userIDFromContext(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

func (s *Server) paperPDFUpload(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	up, err := s.sync.PaperPDFUpload(c.Request.Context(), userIDFromContext(c), clientIDFromContext(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

func (s *Server) entityParam(c *gin.Context) (api.Entity, bool) {
	e, err := api.ParseEntity(c.Param("entity"))
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", common.ErrorNotFound, err))
		return "", false
	}
	return e, true
}

func (s *Server) idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: bad id %q", common.ErrorValidation, c.Param("id")))
		return 0, false
	}
	return id, true
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid json body: %v", common.ErrorValidation, err)
}
