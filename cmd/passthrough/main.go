// Passthrough is a gateway that forwards client requests to operator
// registered upstream targets.
//
// Endpoints map a local path to an upstream URL (or a built-in adapter)
// together with a forwarding policy: configured headers with secret
// references, header and query forwarding, subpath appending and optional
// API-key authentication. Definitions come from the configuration file or
// from the management API at /config/pass_through_endpoint, which persists
// them in the configured store.
//
// Usage:
//
//	# Start the gateway
//	passthrough run --config /etc/passthrough/config.yaml
//
//	# Check configuration and every endpoint definition
//	passthrough validate
//
//	# Manage stored endpoints without a running gateway
//	passthrough endpoints list
//	passthrough endpoints create --path /openai --target https://api.openai.com
//
//	# Query the call log
//	passthrough logs --endpoint 5f0c... --since 1h
package main

func main() {
	Execute()
}
