package logger

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so lock activity can be aggregated and queried.
const (
	KeyPath    = "path"    // Mailbox file path
	KeyBackend = "backend" // Lock backend name: dotlock, fcntl, flock, lockf
	KeyKind    = "kind"    // Requested lock kind: none, shared, exclusive
	KeyEpoch   = "epoch"   // Handle lock epoch
	KeyError   = "error"   // Error detail
	KeySecs    = "secs"    // Seconds remaining before a wait deadline
	KeyPID     = "pid"     // Process ID (dotlock artifact owner)
	KeyHost    = "host"    // Hostname (dotlock artifact owner)
)
