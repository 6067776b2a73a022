package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey carries the client's key on unsafe requests.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotencyReplayed is "true" on responses rebuilt from an
	// earlier completed request.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

const (
	ctxKeyIdem       = "idem"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// idemState is what IdempotencyValidator learned about the request.
type idemState struct {
	key      string
	scope    string
	replay   bool
	resource string
}

func idemFrom(c *gin.Context) *idemState {
	v, ok := c.Get(ctxKeyIdem)
	if !ok {
		return nil
	}
	st, _ := v.(*idemState)
	return st
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	if st := idemFrom(c); st != nil {
		return st.key, true
	}
	return "", false
}

// GetIdempotencyScope returns the scope the key was resolved against.
func GetIdempotencyScope(c *gin.Context) string {
	if st := idemFrom(c); st != nil {
		return st.scope
	}
	return ""
}

// IsReplay reports whether a completed request with the same scope and key
// was found.
func IsReplay(c *gin.Context) bool {
	st := idemFrom(c)
	return st != nil && st.replay
}

// ReplayedResource is the id produced by the original request, or "".
func ReplayedResource(c *gin.Context) string {
	if st := idemFrom(c); st != nil && st.replay {
		return st.resource
	}
	return ""
}

// DefaultIdempotencyScope binds a key to the method, the matched route and
// its :id, e.g. "POST /api/v1/rfis/:id/send:<id>". Reusing a key against
// another RFI is therefore a fresh request.
func DefaultIdempotencyScope(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return c.Request.Method + " " + route + ":" + c.Param("id")
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // default 200
	Pattern *regexp.Regexp // default ^[A-Za-z0-9._~\-:]+$
	Scope   func(*gin.Context) string
}

// IdempotencyLookup returns the resource produced by a still-valid completed
// request for (scope, key). Expiry is the lookup's concern.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (resourceID string, exists bool, err error)

// IdempotencyValidator checks the Idempotency-Key header on unsafe methods
// and consults lookup. A hit marks the request as a replay and exempts it
// from rate limiting; serving the replay is up to the handler. A lookup
// error counts as a miss. Safe methods ignore the header.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = 200
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultKeyPattern
	}
	if opts.Scope == nil {
		opts.Scope = DefaultIdempotencyScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		st := &idemState{key: key, scope: opts.Scope(c)}
		if lookup != nil {
			rid, exists, err := lookup(c.Request.Context(), st.scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			} else if exists {
				st.replay, st.resource = true, rid
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Set(ctxKeyIdem, st)
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
