package shared

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"visitrack/internal/models"
	"visitrack/internal/services"
	"visitrack/internal/utils"
	"visitrack/internal/validators"
)

// requestMeta captures the request attributes used for enrichment.
func requestMeta(c *gin.Context) services.RequestMeta {
	clientIP := c.ClientIP()
	return services.RequestMeta{
		ClientIP: clientIP,
		Headers: utils.FingerprintHeaders{
			UserAgent:      c.GetHeader("User-Agent"),
			AcceptLanguage: c.GetHeader("Accept-Language"),
			AcceptEncoding: c.GetHeader("Accept-Encoding"),
			ClientIP:       clientIP,
			Accept:         c.GetHeader("Accept"),
			Connection:     c.GetHeader("Connection"),
		},
		Hints: localeHints(c),
	}
}

func localeHints(c *gin.Context) models.LocaleHints {
	return models.LocaleHints{
		AcceptLanguage: c.GetHeader("Accept-Language"),
		Timezone:       c.GetHeader("X-Timezone"),
	}
}

// bindAndValidate binds the JSON body and writes the error response itself
// when binding or validation fails.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return false
	}
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.ToMap())
		return false
	}
	return true
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// timeQuery parses an optional RFC 3339 query parameter.
func timeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := utils.ParseTimeISO(raw)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{key: "must be an RFC 3339 timestamp"})
		return nil, false
	}
	return &t, true
}

func intQuery(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
