package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/palletdock/internal/http/handlers/shared"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

func getOperatorID(c *gin.Context) (uint, bool) {
	return handlershared.RequireOperatorID(c)
}

func currentActor(c *gin.Context) service.Actor {
	return handlershared.ActorFromContext(c)
}

func currentIsSuper(c *gin.Context) bool {
	return c.GetBool("operator_is_super")
}

func parseIDParam(c *gin.Context, invalidKey string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, invalidKey, nil)
		return 0, false
	}
	return uint(id), true
}

func parsePage(c *gin.Context) (int, int) {
	return handlershared.ParsePage(c)
}

func parseOptionalBool(raw string) *bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &value
}
