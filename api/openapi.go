package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiSpec []byte

// LoadOpenAPI 讀取並驗證內嵌的 API 描述
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	const op = "LoadOpenAPI"
	doc, err := openapi3.NewLoader().LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load openapi document, err=%w", op, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("[%s] Fail to validate openapi document, err=%w", op, err)
	}
	return doc, nil
}

// (GET /openapi.json)
func (s *Server) openapiDocument(c *gin.Context) {
	c.JSON(http.StatusOK, s.openapi)
}
