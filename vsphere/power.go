package vsphere

import (
	"context"

	"github.com/smnsjas/go-vsphere/vim25"
)

// PowerOnVM powers a VM on and waits for the task.
func (c *Client) PowerOnVM(ctx context.Context, name string) error {
	return c.vmTask(ctx, name, "PowerOnVM_Task")
}

// PowerOffVM hard-powers a VM off and waits for the task.
func (c *Client) PowerOffVM(ctx context.Context, name string) error {
	return c.vmTask(ctx, name, "PowerOffVM_Task")
}

// ResetVM hard-resets a VM and waits for the task.
func (c *Client) ResetVM(ctx context.Context, name string) error {
	return c.vmTask(ctx, name, "ResetVM_Task")
}

// SuspendVM suspends a VM and waits for the task.
func (c *Client) SuspendVM(ctx context.Context, name string) error {
	return c.vmTask(ctx, name, "SuspendVM_Task")
}

// ShutdownVM asks the guest OS to shut down. Fire-and-forget: there is no
// task to wait on, and the guest may take arbitrarily long or refuse.
func (c *Client) ShutdownVM(ctx context.Context, name string) error {
	return c.vmCall(ctx, name, "ShutdownGuest")
}

// RebootVM asks the guest OS to reboot. Fire-and-forget like ShutdownVM.
func (c *Client) RebootVM(ctx context.Context, name string) error {
	return c.vmCall(ctx, name, "RebootGuest")
}

// PowerState returns the VM's power state (poweredOn, poweredOff,
// suspended).
func (c *Client) PowerState(ctx context.Context, name string) (string, error) {
	val, err := c.GetProperty(ctx, "VirtualMachine", name, "runtime.powerState")
	if err != nil {
		return "", err
	}
	state, ok := val.(string)
	if !ok {
		return "", &vim25.ProtocolError{Op: "PowerState", Reason: "runtime.powerState is not a scalar"}
	}
	return state, nil
}

// ToolsIsRunning reports whether VMware Tools is running in the guest.
func (c *Client) ToolsIsRunning(ctx context.Context, name string) (bool, error) {
	val, err := c.GetProperty(ctx, "VirtualMachine", name, "guest.toolsRunningStatus")
	if err != nil {
		return false, err
	}
	return val == "guestToolsRunning", nil
}

// vmTask resolves the VM and runs an argument-less task method on it.
func (c *Client) vmTask(ctx context.Context, name, method string) error {
	ref, err := c.FindRef(ctx, "VirtualMachine", name)
	if err != nil {
		return err
	}
	_, err = c.core.RunTask(ctx, vim25.NewMethod(method, ref), 0)
	return err
}

// vmCall resolves the VM and issues an argument-less plain method on it.
func (c *Client) vmCall(ctx context.Context, name, method string) error {
	ref, err := c.FindRef(ctx, "VirtualMachine", name)
	if err != nil {
		return err
	}
	_, err = c.core.Call(ctx, vim25.NewMethod(method, ref))
	return err
}
