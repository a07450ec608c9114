package session

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderName = "X-Session-Id"
	QueryName  = "sessionId"
	BodyField  = "sessionId"

	sessionIDContextKey = "session_id"
)

// Middleware resolves the session id from the X-Session-Id header, the
// sessionId query parameter or a sessionId field in a JSON body, in that
// order, and aborts with 400 when none is present.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := Extract(c)
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
			return
		}
		c.Set(sessionIDContextKey, sessionID)
		c.Next()
	}
}

// FromContext retrieves the session id stored by the middleware.
func FromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionIDContextKey)
	if !ok {
		return "", false
	}
	sessionID, ok := val.(string)
	return sessionID, ok && sessionID != ""
}

// Extract returns the session id carried by the request, or "".
func Extract(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderName)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query(QueryName)); id != "" {
		return id
	}
	return fromBody(c)
}

// fromBody peeks at a JSON body. The bytes are cached under gin.BodyBytesKey
// so ShouldBindBodyWith can decode them again, and the request body is
// restored for plain binders.
func fromBody(c *gin.Context) string {
	if c.Request.Body == nil || c.ContentType() != gin.MIMEJSON {
		return ""
	}
	var body []byte
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		body, _ = cached.([]byte)
	} else {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return ""
		}
		body = data
		c.Set(gin.BodyBytesKey, body)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	id, _ := payload[BodyField].(string)
	return strings.TrimSpace(id)
}
