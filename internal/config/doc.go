// Package config defines configuration structures for the getm CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (GETM_ prefix)
//   - YAML configuration file
//
// # Structure
//
//	type Config struct {
//	    Concurrency int
//	    ChunkSize   int64
//	    PoolSize    int
//	    Progress    bool
//	    Timeout     time.Duration
//	    Retry       RetryConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts   int
//	    Backoff    time.Duration
//	    MaxBackoff time.Duration
//	}
//
// Concurrency zero selects the synchronous single-request path, so an
// explicit zero in a config file or environment variable is honored
// rather than treated as unset.
package config
