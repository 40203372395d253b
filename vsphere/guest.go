package vsphere

import (
	"context"
	"encoding/xml"

	"github.com/smnsjas/go-vsphere/vim25"
)

// GuestAuth carries in-guest credentials for guest operations.
type GuestAuth struct {
	Username string
	Password string
}

// GuestProcess describes a process in the guest OS.
type GuestProcess struct {
	PID      string
	Name     string
	Owner    string
	CmdLine  string
	ExitCode string
}

type guestAuthXML struct {
	XMLName            xml.Name `xml:"auth"`
	XsiType            string   `xml:"xsi:type,attr"` // "NamePasswordAuthentication"
	InteractiveSession bool     `xml:"interactiveSession"`
	Username           string   `xml:"username"`
	Password           string   `xml:"password"`
}

type guestProgramSpecXML struct {
	XMLName          xml.Name `xml:"spec"`
	ProgramPath      string   `xml:"programPath"`
	Arguments        string   `xml:"arguments"`
	WorkingDirectory string   `xml:"workingDirectory,omitempty"`
}

// RunInGuest starts a program inside the guest OS via VMware Tools and
// returns its PID. The program runs detached; use ListGuestProcesses to
// observe completion and exit code.
func (c *Client) RunInGuest(ctx context.Context, vmName string, auth GuestAuth, programPath, arguments string) (string, error) {
	if programPath == "" {
		return "", &vim25.ValidationError{Reason: "program path is empty"}
	}
	vm, pm, err := c.guestProcessManager(ctx, vmName)
	if err != nil {
		return "", err
	}

	m := vim25.NewMethod("StartProgramInGuest", pm).
		Ref("vm", vm).
		Spec(guestAuthXML{
			XsiType:  "NamePasswordAuthentication",
			Username: auth.Username,
			Password: auth.Password,
		}).
		Spec(guestProgramSpecXML{
			ProgramPath: programPath,
			Arguments:   arguments,
		})

	body, err := c.core.Call(ctx, m)
	if err != nil {
		return "", err
	}

	var resp struct {
		XMLName xml.Name `xml:"Envelope"`
		PID     string   `xml:"Body>StartProgramInGuestResponse>returnval"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", &vim25.ProtocolError{Op: "StartProgramInGuest", Reason: "unparseable response", Cause: err}
	}
	if resp.PID == "" {
		return "", &vim25.ProtocolError{Op: "StartProgramInGuest", Reason: "response has no pid"}
	}
	return resp.PID, nil
}

// ListGuestProcesses lists processes in the guest OS. With pids given,
// only those processes are returned (including recently finished ones
// started by this client, with their exit codes).
func (c *Client) ListGuestProcesses(ctx context.Context, vmName string, auth GuestAuth, pids ...string) ([]GuestProcess, error) {
	vm, pm, err := c.guestProcessManager(ctx, vmName)
	if err != nil {
		return nil, err
	}

	m := vim25.NewMethod("ListProcessesInGuest", pm).
		Ref("vm", vm).
		Spec(guestAuthXML{
			XsiType:  "NamePasswordAuthentication",
			Username: auth.Username,
			Password: auth.Password,
		})
	for _, pid := range pids {
		m.Elem("pids", pid)
	}

	body, err := c.core.Call(ctx, m)
	if err != nil {
		return nil, err
	}

	var resp struct {
		XMLName   xml.Name `xml:"Envelope"`
		Processes []struct {
			Name     string `xml:"name"`
			PID      string `xml:"pid"`
			Owner    string `xml:"owner"`
			CmdLine  string `xml:"cmdLine"`
			ExitCode string `xml:"exitCode"`
		} `xml:"Body>ListProcessesInGuestResponse>returnval"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, &vim25.ProtocolError{Op: "ListProcessesInGuest", Reason: "unparseable response", Cause: err}
	}

	out := make([]GuestProcess, 0, len(resp.Processes))
	for _, p := range resp.Processes {
		out = append(out, GuestProcess{
			PID:      p.PID,
			Name:     p.Name,
			Owner:    p.Owner,
			CmdLine:  p.CmdLine,
			ExitCode: p.ExitCode,
		})
	}
	return out, nil
}

// guestProcessManager resolves the VM plus the guest process manager
// reference from the guest operations manager.
func (c *Client) guestProcessManager(ctx context.Context, vmName string) (vm, pm vim25.ManagedObjectReference, err error) {
	vm, err = c.FindRef(ctx, "VirtualMachine", vmName)
	if err != nil {
		return
	}

	sc, err := c.core.ServiceContent(ctx)
	if err != nil {
		return
	}
	if sc.GuestOpsManager.IsZero() {
		err = &vim25.ProtocolError{Op: "guest operations", Reason: "endpoint has no guest operations manager"}
		return
	}

	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Object:     &sc.GuestOpsManager,
		Properties: []string{"processManager"},
	})
	if err != nil {
		return
	}
	ref, ok := bag[sc.GuestOpsManager]["processManager"].(vim25.ManagedObjectReference)
	if !ok {
		err = &vim25.ProtocolError{Op: "guest operations", Reason: "processManager reference missing"}
		return
	}
	pm = ref
	return
}
