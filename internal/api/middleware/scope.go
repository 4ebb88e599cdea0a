package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/scopectx/internal/boundary"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/transport"
)

// Gin context keys set by Scope.
const (
	ScopeKey   = "scope"
	TrackerKey = "tracker"
)

// Scope opens one scoped context per request. The scope is initialized from
// the request headers, echoed back on the response, bound to the request
// context and disposed once every later handler has returned.
func Scope(runner *boundary.Runner, mapper *transport.HTTPMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := false
		err := runner.Run(c.Request.Context(), boundary.KindHTTP, operationName(c),
			func(sc *scope.Context) error {
				return mapper.Initialize(sc, c.Request)
			},
			func(ctx context.Context, t *operation.Tracker) error {
				started = true
				sc := t.Scope()
				if err := mapper.WriteResponseHeaders(c.Writer.Header(), sc); err != nil {
					return err
				}
				c.Set(ScopeKey, sc)
				c.Set(TrackerKey, t)
				c.Request = c.Request.WithContext(ctx)

				c.Next()

				_ = t.AddMetadata("status", c.Writer.Status())
				if len(c.Errors) > 0 {
					return c.Errors.Last().Err
				}
				if status := c.Writer.Status(); status >= http.StatusInternalServerError {
					return fmt.Errorf("request failed with status %d", status)
				}
				return nil
			},
		)
		if err == nil {
			return
		}

		var perr *boundary.PanicError
		switch {
		case !started:
			c.AbortWithStatusJSON(http.StatusInternalServerError, scopeErrorBody(err))
		case errors.As(err, &perr) && !c.Writer.Written():
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}

// ScopeFrom returns the request's scoped context.
func ScopeFrom(c *gin.Context) (*scope.Context, error) {
	if v, ok := c.Get(ScopeKey); ok {
		if sc, ok := v.(*scope.Context); ok {
			return sc, nil
		}
	}
	return scope.FromContext(c.Request.Context())
}

// TrackerFrom returns the request's operation tracker, if Scope ran.
func TrackerFrom(c *gin.Context) (*operation.Tracker, bool) {
	v, ok := c.Get(TrackerKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(*operation.Tracker)
	return t, ok
}

func operationName(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	return c.Request.Method + " " + path
}

func scopeErrorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var le *scope.LifecycleError
	var ve *scope.ValidationError
	switch {
	case errors.As(err, &le):
		body["kind"] = "lifecycle"
	case errors.As(err, &ve):
		body["kind"] = "validation"
		body["field"] = ve.Field
	}
	return body
}
