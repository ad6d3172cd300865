// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quillfeed/quillfeed/services/orchestrator/handlers"
)

// missingBuildPage is served when the exported frontend bundle is absent.
const missingBuildPage = "<h1>Build the frontend first: npm run build</h1>"

// SetupRoutes registers all HTTP routes on the given engine.
//
// The chat endpoint lives under /api so the exported frontend can be
// served from the root without path collisions. Requests that match no
// registered route fall through to the static frontend handler.
func SetupRoutes(router *gin.Engine, chat handlers.ChatHandler, staticDir string) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/chat", chat.HandleChat)
	}

	registerFrontend(router, staticDir)
}

// registerFrontend serves the statically exported frontend from staticDir.
//
// Resolution order for a GET request:
//  1. The exact file at the request path
//  2. The request path with an ".html" extension appended
//  3. index.html at the root of staticDir
//
// If none of those exist the handler returns a hint page telling the
// operator to build the frontend.
func registerFrontend(router *gin.Engine, staticDir string) {
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Status(http.StatusNotFound)
			return
		}
		serveExportedPage(c, staticDir, c.Request.URL.Path)
	})
}

func serveExportedPage(c *gin.Context, staticDir, urlPath string) {
	// Cleaning a rooted path strips any ".." segments before the
	// path touches the filesystem.
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if rel == "" {
		rel = "index.html"
	}

	candidates := []string{rel, rel + ".html", "index.html"}
	for _, name := range candidates {
		full := filepath.Join(staticDir, filepath.FromSlash(name))
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		c.File(full)
		return
	}

	c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(missingBuildPage))
}
