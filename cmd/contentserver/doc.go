// Package main (cmd/contentserver) runs the content service API server.
//
// Storage bindings are loaded from the YAML or JSON file given by
// --bindings-file. Metadata lives in a badger database under --data-dir, or in
// memory with --in-memory. The path cache shares that database unless
// --cache-redis-addr points it at a redis server.
//
// Example usage:
//
//	content-server \
//	  --bindings-file ./bindings.yaml \
//	  --data-dir /var/lib/content-service \
//	  --listen-addr 0.0.0.0:8080 \
//	  --metrics-addr 0.0.0.0:8090 \
//	  --log-json
//
// The server shuts down gracefully on SIGINT or SIGTERM.
package main
