package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-admin-api/internal/middleware"
	"github.com/noah-isme/training-admin-api/internal/models"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
	"github.com/noah-isme/training-admin-api/pkg/response"
)

func actorFromContext(c *gin.Context) models.Actor {
	return middleware.Claims(c).Actor()
}

// bindJSON decodes the body and writes the validation error itself when decoding fails.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func paging(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		size = 20
	}
	return page, size
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func cachedJSON(c *gin.Context, data interface{}, hit bool) {
	middleware.SetCacheHit(c, hit)
	meta := middleware.ExtractMeta(c)
	response.JSON(c, http.StatusOK, data, nil, meta)
}
