/*
Package httpserver serves the content service API over HTTP.

Collections and items are managed through a manager.CollectionManager. Every
failure is returned as a JSON api.ErrorResponse whose status code is the status
hint carried by the error (interfaces.StatusHint).

# API Endpoints

  - GET /api/bindings - List configured storage bindings
  - GET /api/collections - List collections
  - POST /api/collections - Create a collection
  - GET /api/collections/{id} - Read a collection with its properties and constraints
  - PATCH /api/collections/{id} - Update a collection with a JSON merge patch or JSON patch
  - GET /api/collections/{id}/items - List items
  - POST /api/collections/{id}/items - Upload a new item (multipart or raw body)
  - GET /api/collections/{id}/items/{itemId} - Read item metadata and versions
  - DELETE /api/collections/{id}/items/{itemId} - Delete an item and its content
  - GET /api/collections/{id}/items/{itemId}/versions/{major}_{minor} - Download a version ("latest" selects the newest)
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Raw uploads

A non-multipart upload body is the item content. The item is named by the
X-Item-Name header, its properties are a JSON object in X-Item-Properties and
its mime type is the request Content-Type.

# Example Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Minute,
	}

	handler := httpserver.NewHandler(collectionManager, logger)
	server := httpserver.New(cfg, handler, metricsSrv)
	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
