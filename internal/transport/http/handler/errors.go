package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cmtonkinson/brain-scheduler/internal/apierr"
)

// writeError maps err through apierr and writes the resulting status/body.
func writeError(c *gin.Context, err error) {
	apiErr := apierr.Map(err)
	c.JSON(apiErr.HTTPStatus(), gin.H{"error": apiErr.Message, "code": apiErr.Code})
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apierr.CodeValidation})
}
