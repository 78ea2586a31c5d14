package rpc

import "fmt"

// Timeout is returned by Client.Call when no response arrives for id
// within the call's timeout. Its message is exactly "rpc <id> (<name>)
// timed out", matched by callers that print or compare it verbatim.
type Timeout struct {
	ID   int64
	Name string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("rpc %d (%s) timed out", e.ID, e.Name)
}
