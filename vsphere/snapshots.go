package vsphere

import (
	"context"
	"strconv"

	"github.com/smnsjas/go-vsphere/vim25"
)

// Snapshot is one node of a VM's snapshot tree, flattened.
type Snapshot struct {
	Name        string
	Description string
	Ref         vim25.ManagedObjectReference
	Created     string
}

// SnapshotOptions configures CreateSnapshot.
type SnapshotOptions struct {
	Description string
	// Memory includes the VM's memory in the snapshot.
	Memory bool
	// Quiesce asks VMware Tools to quiesce the guest filesystem.
	Quiesce bool
}

// CreateSnapshot takes a snapshot of the VM and waits for completion.
func (c *Client) CreateSnapshot(ctx context.Context, vmName, snapName string, opts SnapshotOptions) error {
	ref, err := c.FindRef(ctx, "VirtualMachine", vmName)
	if err != nil {
		return err
	}
	m := vim25.NewMethod("CreateSnapshot_Task", ref).
		Elem("name", snapName).
		Elem("description", opts.Description).
		Elem("memory", strconv.FormatBool(opts.Memory)).
		Elem("quiesce", strconv.FormatBool(opts.Quiesce))
	_, err = c.core.RunTask(ctx, m, 0)
	return err
}

// RevertToCurrentSnapshot reverts the VM to its current snapshot.
func (c *Client) RevertToCurrentSnapshot(ctx context.Context, vmName string) error {
	return c.vmTask(ctx, vmName, "RevertToCurrentSnapshot_Task")
}

// RemoveSnapshot removes the named snapshot, optionally with its
// children, and waits for completion.
func (c *Client) RemoveSnapshot(ctx context.Context, vmName, snapName string, removeChildren bool) error {
	snap, err := c.findSnapshot(ctx, vmName, snapName)
	if err != nil {
		return err
	}
	m := vim25.NewMethod("RemoveSnapshot_Task", snap.Ref).
		Elem("removeChildren", strconv.FormatBool(removeChildren))
	_, err = c.core.RunTask(ctx, m, 0)
	return err
}

// ListSnapshots returns the VM's snapshot tree flattened in discovery
// order. A VM without snapshots yields an empty list.
func (c *Client) ListSnapshots(ctx context.Context, vmName string) ([]Snapshot, error) {
	props, err := c.GetProperties(ctx, "VirtualMachine", vmName, []string{"snapshot"})
	if err != nil {
		return nil, err
	}
	tree, ok := props["snapshot"].(map[string]any)
	if !ok {
		return nil, nil // no snapshots
	}
	return collectSnapshots(tree["rootSnapshotList"]), nil
}

// collectSnapshots walks the nested snapshot tree records depth-first.
func collectSnapshots(v any) []Snapshot {
	var out []Snapshot
	for _, node := range asList(v) {
		rec, ok := node.(map[string]any)
		if !ok {
			continue
		}
		snap := Snapshot{}
		snap.Name, _ = rec["name"].(string)
		snap.Description, _ = rec["description"].(string)
		snap.Created, _ = rec["createTime"].(string)
		if ref, ok := rec["snapshot"].(vim25.ManagedObjectReference); ok {
			snap.Ref = ref
		}
		out = append(out, snap)
		out = append(out, collectSnapshots(rec["childSnapshotList"])...)
	}
	return out
}

// asList normalizes a decoded property value to a slice: a single nested
// record arrives as the record itself, repeats arrive as []any.
func asList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	default:
		return []any{val}
	}
}

func (c *Client) findSnapshot(ctx context.Context, vmName, snapName string) (Snapshot, error) {
	snaps, err := c.ListSnapshots(ctx, vmName)
	if err != nil {
		return Snapshot{}, err
	}
	for _, s := range snaps {
		if s.Name == snapName {
			return s, nil
		}
	}
	return Snapshot{}, &NotFoundError{Type: "snapshot of " + vmName, Name: snapName}
}
