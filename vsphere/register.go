package vsphere

import (
	"context"
	"strconv"

	"github.com/smnsjas/go-vsphere/vim25"
)

// RegisterVM adds an existing VM (its .vmx on a datastore, e.g.
// "[datastore1] vm1/vm1.vmx") to the inventory of the named datacenter,
// placed on the named host, and waits for the task.
func (c *Client) RegisterVM(ctx context.Context, datacenterName, hostName, vmxPath string, asTemplate bool) error {
	if vmxPath == "" {
		return &vim25.ValidationError{Reason: "vmx path is empty"}
	}

	dcProps, err := c.GetProperties(ctx, "Datacenter", datacenterName, []string{"vmFolder"})
	if err != nil {
		return err
	}
	folder, ok := dcProps["vmFolder"].(vim25.ManagedObjectReference)
	if !ok {
		return &vim25.ProtocolError{Op: "RegisterVM", Reason: "datacenter has no vmFolder reference"}
	}

	host, err := c.FindRef(ctx, "HostSystem", hostName)
	if err != nil {
		return err
	}
	pool, err := c.hostResourcePool(ctx, host)
	if err != nil {
		return err
	}

	m := vim25.NewMethod("RegisterVM_Task", folder).
		Elem("path", vmxPath).
		Elem("asTemplate", strconv.FormatBool(asTemplate)).
		Ref("pool", pool).
		Ref("host", host)
	_, err = c.core.RunTask(ctx, m, 0)
	return err
}

// UnregisterVM removes the VM from the inventory without deleting its
// files. The reference cache is cleared since the name mapping dies with
// the registration.
func (c *Client) UnregisterVM(ctx context.Context, vmName string) error {
	if err := c.vmCall(ctx, vmName, "UnregisterVM"); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}

// hostResourcePool walks host → parent compute resource → root resource
// pool.
func (c *Client) hostResourcePool(ctx context.Context, host vim25.ManagedObjectReference) (vim25.ManagedObjectReference, error) {
	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Object:     &host,
		Properties: []string{"parent"},
	})
	if err != nil {
		return vim25.ManagedObjectReference{}, err
	}
	parent, ok := bag[host]["parent"].(vim25.ManagedObjectReference)
	if !ok {
		return vim25.ManagedObjectReference{}, &vim25.ProtocolError{Op: "RegisterVM", Reason: "host has no parent reference"}
	}

	bag, err = c.core.Retrieve(ctx, vim25.Query{
		Object:     &parent,
		Properties: []string{"resourcePool"},
	})
	if err != nil {
		return vim25.ManagedObjectReference{}, err
	}
	pool, ok := bag[parent]["resourcePool"].(vim25.ManagedObjectReference)
	if !ok {
		return vim25.ManagedObjectReference{}, &vim25.ProtocolError{Op: "RegisterVM", Reason: "compute resource has no resourcePool reference"}
	}
	return pool, nil
}
