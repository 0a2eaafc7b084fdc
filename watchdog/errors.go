package watchdog

// TransientQueryError wraps a failed status query. The cycle is skipped and
// belief is left unchanged.
type TransientQueryError struct {
	Err error
}

func (e *TransientQueryError) Error() string { return "status query failed: " + e.Err.Error() }
func (e *TransientQueryError) Unwrap() error { return e.Err }

// ConnectError wraps a failed session connect. Belief stays Live and the next
// poll retries.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "session connect failed: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }
