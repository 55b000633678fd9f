// Package handler holds helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/middleware"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

// Session returns the caller's session or an auth_missing error.
func Session(c *gin.Context) (*session.Session, error) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return nil, errors.AuthMissing()
	}
	return s, nil
}

// Actor is who the backend sees acting for s.
func Actor(s *session.Session) appointment.Actor {
	return appointment.Actor{UserID: s.UserID(), Token: s.Token()}
}

// IntParam parses a positive path parameter.
func IntParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, errors.BadRequest("invalid "+name, err)
	}
	return v, nil
}

// IntQuery parses an optional non-negative query parameter.
func IntQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.BadRequest("invalid "+name, err)
	}
	return v, nil
}

// PageQuery parses page (default 1) and page_size (default def). Sizes
// above appointment.MaxPageSize are capped.
func PageQuery(c *gin.Context, def int) (page, pageSize int, err error) {
	page, err = IntQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = IntQuery(c, "page_size", def)
	if err != nil {
		return 0, 0, err
	}
	switch {
	case pageSize == 0:
		pageSize = def
	case pageSize > appointment.MaxPageSize:
		pageSize = appointment.MaxPageSize
	}
	return page, pageSize, nil
}
