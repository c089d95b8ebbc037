package middleware

import (
	domain "course-enrollment/internal/domain/enrollment"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ActorContext = "actor"

// Actor reads the identity headers set by the authenticating gateway.
// Requests without them act as an anonymous student.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := domain.Actor{Role: "student"}
		if id, err := uuid.Parse(c.GetHeader("X-Actor-Id")); err == nil {
			actor.ID = id
		}
		if role := c.GetHeader("X-Actor-Role"); role != "" {
			actor.Role = role
		}
		c.Set(ActorContext, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by the Actor middleware.
func ActorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(ActorContext); ok {
		if actor, ok := v.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{Role: "student"}
}
