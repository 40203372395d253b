package vim25

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Fault is a SOAP fault returned by the vim service. Detail carries the
// xsi:type of the fault detail element (e.g. "NotAuthenticatedFault",
// "InvalidLoginFault"), which is how vim25 discriminates fault kinds.
type Fault struct {
	Code    string
	Message string
	Detail  string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	var parts []string
	if f.Detail != "" {
		parts = append(parts, f.Detail)
	}
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Message != "" {
		parts = append(parts, f.Message)
	}
	return "vim25 fault: " + strings.Join(parts, ": ")
}

// IsNotAuthenticated reports whether the fault means the session token is
// missing or expired.
func (f *Fault) IsNotAuthenticated() bool {
	return strings.Contains(f.Detail, "NotAuthenticated") ||
		strings.Contains(f.Message, "session is not authenticated")
}

// IsInvalidLogin reports whether the fault means bad credentials.
func (f *Fault) IsInvalidLogin() bool {
	return strings.Contains(f.Detail, "InvalidLogin")
}

// IsNoPermission reports whether the fault means insufficient privileges.
func (f *Fault) IsNoPermission() bool {
	return strings.Contains(f.Detail, "NoPermission")
}

// AuthError means login failed or the session could not be re-established.
// Message is the server-supplied text, surfaced verbatim.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return "vim25: authentication failed: " + e.Message
	}
	return "vim25: authentication failed"
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ProtocolError means the server response does not match the expected
// vim25 contract: an API version mismatch or a bug, never downgraded to an
// empty result.
type ProtocolError struct {
	Op     string
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	msg := "vim25: protocol error"
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// TaskError means a server-side task reached the error state. Message is
// the server's localized fault text, or a dump of the task info when the
// server supplied no message.
type TaskError struct {
	Task    ManagedObjectReference
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("vim25: task %s failed: %s", e.Task, e.Message)
}

// TaskTimeoutError means the client gave up waiting; the task itself may
// still be running server-side and is never cancelled by this client.
type TaskTimeoutError struct {
	Task    ManagedObjectReference
	Elapsed time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("vim25: timed out waiting for task %s after %s", e.Task, e.Elapsed)
}

// ValidationError means the caller supplied malformed arguments (missing
// parameter, invalid select set, non-scalar where value). It is raised
// before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "vim25: invalid argument: " + e.Reason
}

// IsFault reports whether err is (or wraps) a vim25 SOAP fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// ParseFault parses a SOAP response body and returns the fault it carries,
// or nil if the body is not a fault.
func ParseFault(data []byte) (*Fault, error) {
	if !strings.Contains(string(data), ":Fault") {
		return nil, nil
	}

	var env faultEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse fault: %w", err)
	}
	if env.Body.Fault.Code == "" && env.Body.Fault.String == "" {
		return nil, nil
	}

	f := &Fault{
		Code:    env.Body.Fault.Code,
		Message: env.Body.Fault.String,
	}
	// The detail child's xsi:type names the vim25 fault kind.
	for _, d := range env.Body.Fault.Detail.Children {
		if d.XsiType != "" {
			f.Detail = d.XsiType
			break
		}
		if d.XMLName.Local != "" && f.Detail == "" {
			f.Detail = d.XMLName.Local
		}
	}
	return f, nil
}

// CheckFault returns the fault carried by data as an error, or nil.
func CheckFault(data []byte) error {
	f, err := ParseFault(data)
	if err != nil {
		return err
	}
	if f != nil {
		return f
	}
	return nil
}

type faultEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
			Detail struct {
				Children []faultDetail `xml:",any"`
			} `xml:"detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

type faultDetail struct {
	XMLName xml.Name
	XsiType string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
}
