// Package health provides the liveness, readiness and version endpoints.
//
// Liveness answers 200 while the process serves. Readiness runs the
// registered component checks concurrently, each bounded by the check
// timeout, and answers 503 while any of them fails. The gateway registers
// a "store" check that pings the configuration store and a "routes" check
// that fails while configured endpoints produced no routes.
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	health.Register(mux, checker, cfg.Telemetry.Health, health.NewVersionInfo(version, commit, date))
package health
