package vsphere

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/smnsjas/go-vsphere/vim25"
)

// ReconfigSpec describes hardware changes for ReconfigureVM. Zero fields
// are left unchanged.
type ReconfigSpec struct {
	NumCPUs  int
	MemoryMB int64
}

// Wire shapes for VirtualMachineConfigSpec. Field order follows the
// schema sequence.

type vmConfigSpecXML struct {
	XMLName      xml.Name          `xml:"spec"`
	NumCPUs      *int              `xml:"numCPUs,omitempty"`
	MemoryMB     *int64            `xml:"memoryMB,omitempty"`
	DeviceChange []deviceChangeXML `xml:"deviceChange,omitempty"`
}

type deviceChangeXML struct {
	Operation     string `xml:"operation"`
	FileOperation string `xml:"fileOperation,omitempty"`
	Device        any    `xml:"device"`
}

type virtualDiskXML struct {
	XsiType       string         `xml:"xsi:type,attr"` // "VirtualDisk"
	Key           int            `xml:"key"`
	Backing       diskBackingXML `xml:"backing"`
	ControllerKey int            `xml:"controllerKey"`
	UnitNumber    int            `xml:"unitNumber"`
	CapacityInKB  int64          `xml:"capacityInKB"`
}

type diskBackingXML struct {
	XsiType         string `xml:"xsi:type,attr"` // "VirtualDiskFlatVer2BackingInfo"
	FileName        string `xml:"fileName"`
	DiskMode        string `xml:"diskMode"`
	ThinProvisioned bool   `xml:"thinProvisioned"`
}

type cdromXML struct {
	XsiType       string         `xml:"xsi:type,attr"` // "VirtualCdrom"
	Key           int            `xml:"key"`
	Backing       isoBackingXML  `xml:"backing"`
	Connectable   connectableXML `xml:"connectable"`
	ControllerKey int            `xml:"controllerKey"`
	UnitNumber    int            `xml:"unitNumber"`
}

type isoBackingXML struct {
	XsiType  string `xml:"xsi:type,attr"` // "VirtualCdromIsoBackingInfo"
	FileName string `xml:"fileName"`
}

type connectableXML struct {
	StartConnected    bool `xml:"startConnected"`
	AllowGuestControl bool `xml:"allowGuestControl"`
	Connected         bool `xml:"connected"`
}

// ReconfigureVM changes VM hardware (CPU count, memory) and waits for the
// reconfigure task.
func (c *Client) ReconfigureVM(ctx context.Context, vmName string, spec ReconfigSpec) error {
	if spec.NumCPUs == 0 && spec.MemoryMB == 0 {
		return &vim25.ValidationError{Reason: "reconfigure spec is empty"}
	}
	wire := vmConfigSpecXML{}
	if spec.NumCPUs > 0 {
		wire.NumCPUs = &spec.NumCPUs
	}
	if spec.MemoryMB > 0 {
		wire.MemoryMB = &spec.MemoryMB
	}
	return c.reconfig(ctx, vmName, wire)
}

// DiskOptions configures AddDisk.
type DiskOptions struct {
	// SizeMB is the disk capacity. Required.
	SizeMB int64
	// Thin provisions the disk lazily.
	Thin bool
	// Path places the backing file explicitly ("[datastore] vm/disk.vmdk").
	// Empty lets the server pick a path next to the VM.
	Path string
}

// AddDisk creates a new virtual disk on the VM's first SCSI controller
// and waits for the reconfigure task.
func (c *Client) AddDisk(ctx context.Context, vmName string, opts DiskOptions) error {
	if opts.SizeMB <= 0 {
		return &vim25.ValidationError{Reason: "disk size must be positive"}
	}

	devices, err := c.listDevices(ctx, vmName)
	if err != nil {
		return err
	}
	ctlKey, unit, err := scsiSlot(devices)
	if err != nil {
		return err
	}

	wire := vmConfigSpecXML{
		DeviceChange: []deviceChangeXML{{
			Operation:     "add",
			FileOperation: "create",
			Device: virtualDiskXML{
				XsiType: "VirtualDisk",
				Key:     -1,
				Backing: diskBackingXML{
					XsiType:         "VirtualDiskFlatVer2BackingInfo",
					FileName:        opts.Path,
					DiskMode:        "persistent",
					ThinProvisioned: opts.Thin,
				},
				ControllerKey: ctlKey,
				UnitNumber:    unit,
				CapacityInKB:  opts.SizeMB * 1024,
			},
		}},
	}
	return c.reconfig(ctx, vmName, wire)
}

// RemoveDisk removes the disk whose label matches (e.g. "Hard disk 2"),
// destroying its backing file, and waits for the task.
func (c *Client) RemoveDisk(ctx context.Context, vmName, label string) error {
	dev, err := c.findDevice(ctx, vmName, "VirtualDisk", label)
	if err != nil {
		return err
	}

	wire := vmConfigSpecXML{
		DeviceChange: []deviceChangeXML{{
			Operation:     "remove",
			FileOperation: "destroy",
			Device: virtualDiskXML{
				XsiType:       "VirtualDisk",
				Key:           devInt(dev, "key"),
				ControllerKey: devInt(dev, "controllerKey"),
				UnitNumber:    devInt(dev, "unitNumber"),
				CapacityInKB:  int64(devInt(dev, "capacityInKB")),
				Backing: diskBackingXML{
					XsiType:  "VirtualDiskFlatVer2BackingInfo",
					FileName: devBackingFile(dev),
					DiskMode: "persistent",
				},
			},
		}},
	}
	return c.reconfig(ctx, vmName, wire)
}

// InsertCdrom connects the VM's first CD-ROM drive to an ISO on a
// datastore ("[datastore] path/image.iso") and waits for the task.
func (c *Client) InsertCdrom(ctx context.Context, vmName, isoPath string) error {
	dev, err := c.findDevice(ctx, vmName, "VirtualCdrom", "")
	if err != nil {
		return err
	}

	wire := vmConfigSpecXML{
		DeviceChange: []deviceChangeXML{{
			Operation: "edit",
			Device: cdromXML{
				XsiType: "VirtualCdrom",
				Key:     devInt(dev, "key"),
				Backing: isoBackingXML{
					XsiType:  "VirtualCdromIsoBackingInfo",
					FileName: isoPath,
				},
				Connectable: connectableXML{
					StartConnected:    true,
					AllowGuestControl: false,
					Connected:         true,
				},
				ControllerKey: devInt(dev, "controllerKey"),
				UnitNumber:    devInt(dev, "unitNumber"),
			},
		}},
	}
	return c.reconfig(ctx, vmName, wire)
}

// MountToolsInstaller mounts the VMware Tools installer image in the VM.
func (c *Client) MountToolsInstaller(ctx context.Context, vmName string) error {
	return c.vmCall(ctx, vmName, "MountToolsInstaller")
}

// UnmountToolsInstaller unmounts the VMware Tools installer image.
func (c *Client) UnmountToolsInstaller(ctx context.Context, vmName string) error {
	return c.vmCall(ctx, vmName, "UnmountToolsInstaller")
}

func (c *Client) reconfig(ctx context.Context, vmName string, spec vmConfigSpecXML) error {
	ref, err := c.FindRef(ctx, "VirtualMachine", vmName)
	if err != nil {
		return err
	}
	m := vim25.NewMethod("ReconfigVM_Task", ref).Spec(spec)
	_, err = c.core.RunTask(ctx, m, 0)
	return err
}

// listDevices retrieves config.hardware.device with type discriminators
// kept, so device classes can be told apart.
func (c *Client) listDevices(ctx context.Context, vmName string) ([]map[string]any, error) {
	ref, err := c.FindRef(ctx, "VirtualMachine", vmName)
	if err != nil {
		return nil, err
	}
	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Object:     &ref,
		Properties: []string{"config.hardware.device"},
		KeepTypes:  true,
	})
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, item := range asList(bag[ref]["config.hardware.device"]) {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// findDevice picks the first device of the given class, optionally
// matching deviceInfo.label.
func (c *Client) findDevice(ctx context.Context, vmName, class, label string) (map[string]any, error) {
	devices, err := c.listDevices(ctx, vmName)
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		t, _ := dev[vim25.TypeKey].(string)
		if t != class {
			continue
		}
		if label != "" && devLabel(dev) != label {
			continue
		}
		return dev, nil
	}
	want := class
	if label != "" {
		want += " " + label
	}
	return nil, &NotFoundError{Type: "device of " + vmName, Name: want}
}

// scsiSlot returns the first SCSI controller's key and the next free unit
// number on it (unit 7 is reserved for the controller itself).
func scsiSlot(devices []map[string]any) (ctlKey, unit int, err error) {
	ctlKey = -1
	for _, dev := range devices {
		t, _ := dev[vim25.TypeKey].(string)
		if isSCSIController(t) {
			ctlKey = devInt(dev, "key")
			break
		}
	}
	if ctlKey == -1 {
		return 0, 0, &NotFoundError{Type: "device", Name: "SCSI controller"}
	}

	used := map[int]bool{7: true}
	for _, dev := range devices {
		if devInt(dev, "controllerKey") == ctlKey {
			used[devInt(dev, "unitNumber")] = true
		}
	}
	for u := 0; u < 16; u++ {
		if !used[u] {
			return ctlKey, u, nil
		}
	}
	return 0, 0, &vim25.ValidationError{Reason: "no free unit on SCSI controller"}
}

// isSCSIController recognizes the concrete SCSI controller device classes.
func isSCSIController(class string) bool {
	switch class {
	case "ParaVirtualSCSIController", "VirtualLsiLogicController",
		"VirtualLsiLogicSASController", "VirtualBusLogicController":
		return true
	}
	return strings.Contains(class, "SCSIController")
}

func devInt(dev map[string]any, key string) int {
	s, _ := dev[key].(string)
	n, _ := strconv.Atoi(s)
	return n
}

func devLabel(dev map[string]any) string {
	info, _ := dev["deviceInfo"].(map[string]any)
	label, _ := info["label"].(string)
	return label
}

func devBackingFile(dev map[string]any) string {
	backing, _ := dev["backing"].(map[string]any)
	file, _ := backing["fileName"].(string)
	return file
}
