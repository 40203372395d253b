// Package govsphere documents the layout of the go-vsphere module, a
// thin client for VMware vSphere's Web Services (vim25) SOAP API.
//
// # Architecture
//
// The library is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  cmd/vsphere-cli   Command-line interface               │
//	├─────────────────────────────────────────────────────────┤
//	│  vsphere/          Name-based convenience operations    │
//	│                    (power, snapshots, disks, guest)     │
//	├─────────────────────────────────────────────────────────┤
//	│  vim25/            Core protocol client: sessions,      │
//	│                    property collector, task polling     │
//	├─────────────────────────────────────────────────────────┤
//	│  vim25/transport   SOAP 1.1 over HTTPS, cookie session  │
//	└─────────────────────────────────────────────────────────┘
//
// # Quick Start
//
//	cfg := vsphere.DefaultConfig()
//	cfg.Host = "vcenter.example.com"
//	cfg.Username = "administrator"
//	cfg.Password = "password"
//	c, err := vsphere.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(ctx)
//
//	state, err := c.PowerState(ctx, "web01")
package govsphere
