/*
Package security groups the gateway's security packages.

  - tls builds the server TLS configuration and reloads certificates.
  - secrets resolves os.environ/ references in configured header values.
  - auth is the API-key check guarding the management API and pass-through
    routes declared with auth.
*/
package security
