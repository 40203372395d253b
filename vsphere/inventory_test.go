package vsphere

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/smnsjas/go-vsphere/vim25"
)

func TestFindRefCachesLookups(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(string) (int, string) {
		return http.StatusOK, vcRetrieve(vcVM("vm-1", "test_vm1"))
	})

	ctx := context.Background()
	ref, err := c.FindRef(ctx, "VirtualMachine", "test_vm1")
	if err != nil {
		t.Fatalf("FindRef: %v", err)
	}
	if ref.Value != "vm-1" {
		t.Errorf("ref = %v", ref)
	}

	inventoryQueries := f.count("RetrievePropertiesEx")
	if _, err := c.FindRef(ctx, "VirtualMachine", "test_vm1"); err != nil {
		t.Fatalf("FindRef (cached): %v", err)
	}
	if n := f.count("RetrievePropertiesEx"); n != inventoryQueries {
		t.Errorf("cached lookup hit the server (%d -> %d queries)", inventoryQueries, n)
	}
}

func TestFindRefNotFound(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(string) (int, string) {
		return http.StatusOK, vcRetrieve()
	})

	_, err := c.FindRef(context.Background(), "VirtualMachine", "ghost")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if nf.Name != "ghost" || nf.Type != "VirtualMachine" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestFindRefAmbiguous(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(string) (int, string) {
		return http.StatusOK, vcRetrieve(vcVM("vm-1", "dup"), vcVM("vm-2", "dup"))
	})

	_, err := c.FindRef(context.Background(), "VirtualMachine", "dup")
	var amb *AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("error = %v, want *AmbiguousError", err)
	}
	if amb.Count != 2 {
		t.Errorf("Count = %d, want 2", amb.Count)
	}
}

func TestList(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(string) (int, string) {
		return http.StatusOK, vcRetrieve(vcVM("vm-1", "web01"), vcVM("vm-2", "db01"))
	})

	vms, err := c.List(context.Background(), "VirtualMachine")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(vms) != 2 || vms["web01"].Value != "vm-1" || vms["db01"].Value != "vm-2" {
		t.Errorf("List = %v", vms)
	}
}

func TestGetProperty(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(body string) (int, string) {
		// Name lookup first, then the single-object property fetch.
		if strings.Contains(body, `<obj type="VirtualMachine">vm-1</obj>`) {
			return http.StatusOK, vcRetrieve(`<objects><obj type="VirtualMachine">vm-1</obj><propSet><name>runtime.powerState</name><val xsi:type="xsd:string">poweredOn</val></propSet></objects>`)
		}
		return http.StatusOK, vcRetrieve(vcVM("vm-1", "web01"))
	})

	val, err := c.GetProperty(context.Background(), "VirtualMachine", "web01", "runtime.powerState")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if val != "poweredOn" {
		t.Errorf("value = %v", val)
	}
}

func TestStaleCacheCleared(t *testing.T) {
	f, c := newTestClient(t)
	f.on("RetrievePropertiesEx", func(string) (int, string) {
		return http.StatusOK, vcRetrieve()
	})

	// A cached reference whose object no longer exists.
	ghost := vim25.ManagedObjectReference{Type: "VirtualMachine", Value: "vm-99"}
	c.cache.Store("VirtualMachine", "ghost", ghost)

	_, err := c.GetProperties(context.Background(), "VirtualMachine", "ghost", []string{"name"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if _, ok := c.cache.Lookup("VirtualMachine", "ghost"); ok {
		t.Error("stale entry survived in the cache")
	}
}

func TestAbout(t *testing.T) {
	_, c := newTestClient(t)

	about, err := c.About(context.Background())
	if err != nil {
		t.Fatalf("About: %v", err)
	}
	if about.FullName != "VMware vCenter Server 5.5.0" || about.APIVersion != "5.5" {
		t.Errorf("About = %+v", about)
	}
}

func TestCurrentTime(t *testing.T) {
	f, c := newTestClient(t)
	f.on("CurrentTime", func(string) (int, string) {
		return http.StatusOK, vcEnvelope(`<CurrentTimeResponse xmlns="urn:internalvim25"><returnval>2024-03-01T12:00:00Z</returnval></CurrentTimeResponse>`)
	})

	now, err := c.CurrentTime(context.Background())
	if err != nil {
		t.Fatalf("CurrentTime: %v", err)
	}
	if now != "2024-03-01T12:00:00Z" {
		t.Errorf("CurrentTime = %q", now)
	}
}
