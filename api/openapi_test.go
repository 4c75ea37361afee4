package api

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ginParam = regexp.MustCompile(`:([A-Za-z]+)`)

func TestOpenAPI_CoversRoutes(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)

	ts := newTestServer(t)
	routes := ts.router.Routes()
	require.NotEmpty(t, routes)
	for _, route := range routes {
		path := ginParam.ReplaceAllString(route.Path, "{$1}")
		item := doc.Paths.Find(path)
		if !assert.NotNil(t, item, "路徑 %s 沒有描述", path) {
			continue
		}
		assert.NotNil(t, item.GetOperation(route.Method), "%s %s 沒有描述", route.Method, path)
	}

	// 描述中的每個路徑都有對應的路由
	registered := map[string]bool{}
	for _, route := range routes {
		registered[ginParam.ReplaceAllString(route.Path, "{$1}")] = true
	}
	for path := range doc.Paths.Map() {
		assert.True(t, registered[path], "描述中的 %s 沒有路由", path)
	}
}

func TestOpenAPI_Served(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/openapi.json", nil, nil)
	requireStatus(t, w, http.StatusOK)
	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "3.0.3", body["openapi"])
	paths := body["paths"].(map[string]any)
	assert.Contains(t, paths, "/offers")
	assert.Contains(t, paths, "/artworks/{id}/events")
}
