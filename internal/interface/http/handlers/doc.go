// Package handlers contains the reusable pieces of the HTTP surface:
// health checks, bearer token authentication and middleware.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", conn.Ping)
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//	checker.AddReadinessCheck("catalog", handlers.NewCatalogCheck(client))
//
// # Authentication
//
// Tokens are issued by the authentication service and signed with a shared
// HS256 secret. The subject is the student's profile ID; the admin claim
// unlocks the matching endpoints:
//
//	auth := handlers.NewAuthenticator(cfg.HTTP.JWTSecret)
//	students := handlers.ChainHandler(h, auth.Middleware)
//	admin := handlers.ChainHandler(h, auth.Middleware, handlers.RequireAdmin)
package handlers
