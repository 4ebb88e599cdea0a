// Package server assembles the scopectx process.
//
// NewServer builds every component from config.Config in dependency order:
// logger, metrics, node registry, transport mappers, the boundary runner,
// the outbound client, health probes, the HTTP router, the gRPC server and
// the job scheduler. Run serves until its context ends and then shuts
// down within SHUTDOWN_TIMEOUT.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
