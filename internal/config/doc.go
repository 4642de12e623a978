// Package config defines configuration structures for pullmirror.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables, optionally seeded from a .env file
//   - YAML configuration file
//
// Precedence is flags > environment > file > defaults.
//
// # Environment
//
//	SOURCE_DIRECTORY       root of the local tree to mirror
//	BASE_URL               prefix joined with each relative path
//	DESTINATION_DIRECTORY  local directory or bucket URL (s3://, gs://, file://, mem://)
//	WORKER_LIMIT           maximum concurrent workers
//	HEAD_REQUEST_TIMEOUT   existence probe timeout, milliseconds
//	GET_REQUEST_TIMEOUT    download attempt timeout, milliseconds
//	RETRY_COUNT            retries after the first failed download attempt
//	RETRY_DELAY            fixed delay between attempts, milliseconds
//	INSECURE_SKIP_VERIFY   skip TLS certificate validation (default true)
//	ATOMIC_WRITES          write to a temp file and rename (default false)
//	PROBE_BODY_LIMIT       bytes read from a probe response (default 1024)
//	PROGRESS               periodic progress lines on stderr (default false)
//	LOG_LEVEL, LOG_FORMAT, LOG_FILE
//
// Booleans accept 1, t, true, 0, f, false in any case. Empty variables are
// treated as unset.
package config
