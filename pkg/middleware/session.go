package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/notifly-go/pkg/auth"
	"github.com/notifly-go/pkg/logger"
)

// Session loads the signed session cookie, or starts a new session, and
// writes the cookie back before the response header goes out if it changed.
func Session(manager *auth.SessionManager, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := manager.Read(c.Request)
		if err != nil {
			s = manager.New()
		}
		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), s))
		sw := &sessionWriter{ResponseWriter: c.Writer, session: s, manager: manager, log: log}
		c.Writer = sw
		c.Next()
		if !sw.Written() {
			sw.flush()
		}
	}
}

type sessionWriter struct {
	gin.ResponseWriter
	session *auth.Session
	manager *auth.SessionManager
	log     logger.Logger
	written bool
}

func (w *sessionWriter) flush() {
	if w.written {
		return
	}
	w.written = true
	if !w.session.Dirty() {
		return
	}
	cookie, err := w.manager.Cookie(w.session)
	if err != nil {
		w.log.Warn("Failed to write session cookie", "error", err)
		return
	}
	http.SetCookie(w.ResponseWriter, cookie)
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) WriteHeaderNow() {
	w.flush()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(data)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.flush()
	return w.ResponseWriter.WriteString(s)
}

// Authenticate resolves the caller from a Bearer token, falling back to the
// user bound to the session. Requests without credentials continue anonymously;
// a bad token is answered with 401.
func Authenticate(tokens *auth.Manager, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if header := c.GetHeader("Authorization"); header != "" {
			const bearerScheme = "Bearer "
			if !strings.HasPrefix(header, bearerScheme) {
				unauthorized(c, "invalid authorization header format")
				return
			}
			claims, err := tokens.ValidateToken(strings.TrimSpace(header[len(bearerScheme):]))
			if err != nil {
				log.Debug("Rejected bearer token", "error", err)
				unauthorized(c, "invalid or expired token")
				return
			}
			c.Set("userId", claims.UserID)
			c.Request = c.Request.WithContext(auth.WithUserID(ctx, claims.UserID))
			c.Next()
			return
		}

		if s := auth.SessionFrom(ctx); s != nil && s.UserID() != "" {
			c.Set("userId", s.UserID())
			c.Request = c.Request.WithContext(auth.WithUserID(ctx, s.UserID()))
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": msg,
	})
}
