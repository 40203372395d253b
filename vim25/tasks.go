package vim25

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

const (
	// DefaultTaskTimeout bounds how long WaitForTask polls before giving
	// up on a task.
	DefaultTaskTimeout = 600 * time.Second

	// taskPollInterval is the fixed delay between task state fetches.
	taskPollInterval = time.Second
)

// RunTask invokes a task-returning method, then waits for the task to
// reach a terminal state, returning its result payload (which may be nil
// for fire-and-forget tasks). timeout <= 0 uses DefaultTaskTimeout.
func (c *Client) RunTask(ctx context.Context, m *Method, timeout time.Duration) (any, error) {
	body, err := c.Call(ctx, m)
	if err != nil {
		return nil, err
	}

	task, err := parseTaskRef(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return c.WaitForTask(ctx, task, timeout)
}

// WaitForTask polls the task's info every second until it reaches a
// terminal state. Success returns the task result; error raises a
// *TaskError carrying the server's localized message; exceeding timeout
// raises *TaskTimeoutError and leaves the task running server-side (this
// client never cancels tasks).
func (c *Client) WaitForTask(ctx context.Context, task ManagedObjectReference, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	start := c.clock.Now()

	for {
		info, err := c.taskInfo(ctx, task)
		if err != nil {
			return nil, err
		}

		switch info.State {
		case TaskStateSuccess:
			return info.Result, nil
		case TaskStateError:
			msg := info.Message
			if msg == "" {
				// No localized message: fall back to dumping the info.
				msg = fmt.Sprintf("no fault message, task info: %v", info.Raw)
			}
			return nil, &TaskError{Task: task, Message: msg}
		case TaskStateQueued, TaskStateRunning:
			// Non-terminal, keep polling.
		default:
			return nil, &ProtocolError{Op: "WaitForTask", Reason: "unexpected task state " + info.State}
		}

		elapsed := c.clock.Now().Sub(start)
		if elapsed >= timeout {
			return nil, &TaskTimeoutError{Task: task, Elapsed: elapsed}
		}
		if err := c.clock.Sleep(ctx, taskPollInterval); err != nil {
			return nil, err
		}
	}
}

// taskInfo fetches the task's info property.
func (c *Client) taskInfo(ctx context.Context, task ManagedObjectReference) (*TaskInfo, error) {
	bag, err := c.Retrieve(ctx, Query{
		Object:     &task,
		Properties: []string{"info"},
	})
	if err != nil {
		return nil, err
	}
	props, ok := bag[task]
	if !ok {
		return nil, &ProtocolError{Op: "WaitForTask", Reason: "task " + task.String() + " not found"}
	}
	val, ok := props["info"]
	if !ok {
		return nil, &ProtocolError{Op: "WaitForTask", Reason: "task info property missing"}
	}
	return taskInfoFromValue(task, val)
}

// parseTaskRef extracts the Task reference from a task method's
// <returnval type="Task">id</returnval>.
func parseTaskRef(body []byte) (ManagedObjectReference, error) {
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return ManagedObjectReference{}, &ProtocolError{Op: "task invoke", Reason: "response has no returnval"}
		}
		if err != nil {
			return ManagedObjectReference{}, &ProtocolError{Op: "task invoke", Reason: "unparseable response", Cause: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "returnval" {
			continue
		}
		var ref ManagedObjectReference
		if err := d.DecodeElement(&ref, &start); err != nil {
			return ManagedObjectReference{}, &ProtocolError{Op: "task invoke", Reason: "bad returnval", Cause: err}
		}
		if ref.Type != "Task" {
			return ManagedObjectReference{}, &ProtocolError{Op: "task invoke", Reason: "returnval is " + ref.Type + ", want Task"}
		}
		return ref, nil
	}
}
