package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/gin-gonic/gin"
)

const stackLines = 10

var errRouteNotFound = fmt.Errorf("no route: %w", common.ErrorNotFound)

// fail maps err onto a response and aborts the handler chain.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		c.Header("Location", "/")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": common.Reason(err), "redirect": "/"})
	case errors.Is(err, common.ErrorAuthRequired):
		redirect := "/"
		if slug := c.Param("slug"); slug != "" {
			redirect = "/api/retros/" + slug + "/session"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": common.Reason(err), "redirect": redirect})
	case errors.Is(err, common.ErrorValidation):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": common.Reason(err)})
	case errors.Is(err, common.ErrorAuthFailed):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": common.Reason(err)})
	case errors.Is(err, common.ErrorUpstream):
		s.logger.Error(c.Request.Context(), "upstream failure", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": common.Reason(err)})
	default:
		s.internalError(c, err, debug.Stack())
	}
}

// recovery turns panics into the same response as unexpected errors.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("%v", rec)
		}
		s.internalError(c, err, debug.Stack())
	})
}

func (s *Server) internalError(c *gin.Context, err error, stack []byte) {
	lines := firstLines(string(stack), stackLines)
	s.logger.Error(c.Request.Context(), "internal error",
		"err", err,
		"class", fmt.Sprintf("%T", err),
		"path", c.Request.URL.Path,
		"stack", strings.Join(lines, "\n"))

	body := gin.H{"error": "Internal server error"}
	if !s.config.IsProduction() {
		body["message"] = err.Error()
		body["class"] = fmt.Sprintf("%T", err)
		body["backtrace"] = lines
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}

func firstLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
