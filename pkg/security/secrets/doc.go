/*
Package secrets resolves secret references in configured header values.

A value such as "os.environ/ANTHROPIC_API_KEY" or "Bearer os.environ/TOKEN"
references a secret by name. The Manager looks the name up through an
ordered chain of providers:

  - EnvProvider reads environment variables.
  - FileProvider reads one file per secret from a directory, optionally
    watching it with fsnotify.
  - VaultProvider reads the keys of a single HashiCorp Vault KV v2 secret.

Resolved values are cached with a TTL. Secret values are never logged.

	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return err
	}
	value, err := mgr.ResolveReference(ctx, "Bearer os.environ/UPSTREAM_KEY")
*/
package secrets
