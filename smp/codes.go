package smp

import "fmt"

// ReturnCode is the "rc" value of an SMP response body.
type ReturnCode int

const (
	EOK ReturnCode = iota
	EUNKNOWN
	ENOMEM
	EINVAL
	ETIMEOUT
	ENOENT
	EBADSTATE
	EMSGSIZE
	ENOTSUP
	ECORRUPT
	EBUSY
)

var returnCodeNames = map[ReturnCode]string{
	EOK:       "ok",
	EUNKNOWN:  "unknown error",
	ENOMEM:    "out of memory",
	EINVAL:    "invalid argument",
	ETIMEOUT:  "timeout",
	ENOENT:    "no such entry",
	EBADSTATE: "bad state",
	EMSGSIZE:  "message too large",
	ENOTSUP:   "not supported",
	ECORRUPT:  "corrupt",
	EBUSY:     "busy",
}

// String returns a human readable description of the code.
func (c ReturnCode) String() string {
	if name, ok := returnCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("rc(%d)", int(c))
}

// ResponseError is returned when a device answers with a non-zero rc.
type ResponseError struct {
	Group Group
	ID    uint8
	Code  ReturnCode
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("smp group %d id %d: device returned %s (%d)", e.Group, e.ID, e.Code, int(e.Code))
}
