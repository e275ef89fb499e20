package sensor

import "fmt"

// RemoteError is a well-formed rejection returned by the sensor,
// such as an out-of-range reading interval
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected by sensor: %s (%s)", e.Method, e.Message, e.Code)
}
