// Package server is the WebSocket transport and HTTP surface for Balco.
//
// Each accepted WebSocket becomes a [Conn]: a session.Peer with a buffered
// send queue drained by its own write loop, and a read loop that submits
// every text frame to the shared router. When the read loop ends the router
// is asked to synthesize the disconnect for that peer.
//
// HTTP routes, served by chi:
//
//	GET /ws                    WebSocket upgrade
//	GET /healthz               liveness with room and session counts
//	GET /metrics               Prometheus exposition
//	GET /api/rooms/{roomID}    read-only room snapshot, 404 if absent
//
// Typical wiring:
//
//	store := roomstore.New(backend, roomstore.WithLogger(logger))
//	store.Load(ctx)
//	r := router.New(store, session.NewRegistry(), router.WithLogger(logger))
//	srv := server.New(r, server.DefaultServerConfig(), server.WithLogger(logger))
//	err := srv.Run(ctx)
//
// Run returns after ctx is cancelled and Shutdown has closed every
// connection, stopped the router and flushed the store.
package server
