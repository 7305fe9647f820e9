package engine

// CycleContext threads the upstream conversation id through the steps of
// one cycle. Steps replace it whenever the upstream hands back a new one.
type CycleContext struct {
	CorrelationID string
}

func (c *CycleContext) adopt(id string) {
	if id != "" {
		c.CorrelationID = id
	}
}

// CycleError is a failed cycle along with the step that failed.
type CycleError struct {
	Step          string
	CorrelationID string
	Err           error
}

func (e *CycleError) Error() string { return e.Err.Error() }

func (e *CycleError) Unwrap() error { return e.Err }
