package vim25

import "encoding/xml"

// Canonical traversal graphs, one per common root type. Each is a fixed
// table of named select sets walking the inventory from the root folder
// down to objects of the target type. The tables are immutable; Graph
// hands out copies.
//
// The inventory shape they walk: rootFolder(Folder) → childEntity →
// Datacenter → {vmFolder,hostFolder,networkFolder,datastore,network} →
// nested Folders → leaf objects, with VirtualApp and ComputeResource
// hops where the target type requires them.
var traversalGraphs = map[string][]SelectSet{
	"VirtualMachine": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders", "dcToVmFolder", "vappToVm"}},
		{Name: "dcToVmFolder", Type: "Datacenter", Path: "vmFolder",
			Select: []string{"visitFolders"}},
		{Name: "vappToVm", Type: "VirtualApp", Path: "vm"},
	},
	"HostSystem": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders", "dcToHostFolder", "crToHost"}},
		{Name: "dcToHostFolder", Type: "Datacenter", Path: "hostFolder",
			Select: []string{"visitFolders"}},
		{Name: "crToHost", Type: "ComputeResource", Path: "host"},
	},
	"Datastore": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders", "dcToDatastore"}},
		{Name: "dcToDatastore", Type: "Datacenter", Path: "datastore"},
	},
	"ClusterComputeResource": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders", "dcToHostFolder"}},
		{Name: "dcToHostFolder", Type: "Datacenter", Path: "hostFolder",
			Select: []string{"visitFolders"}},
	},
	"Datacenter": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders"}},
	},
	"Network": {
		{Name: "visitFolders", Type: "Folder", Path: "childEntity",
			Select: []string{"visitFolders", "dcToNetwork"}},
		{Name: "dcToNetwork", Type: "Datacenter", Path: "network"},
	},
}

// Graph returns the canonical traversal graph for reaching objects of the
// given type from the root folder.
func Graph(objType string) ([]SelectSet, error) {
	g, ok := traversalGraphs[objType]
	if !ok {
		return nil, &ValidationError{Reason: "no traversal graph for type " + objType}
	}
	out := make([]SelectSet, len(g))
	copy(out, g)
	return out, nil
}

// GraphTypes lists the types with canonical traversal graphs.
func GraphTypes() []string {
	types := make([]string, 0, len(traversalGraphs))
	for t := range traversalGraphs {
		types = append(types, t)
	}
	return types
}

// Wire shapes for PropertyFilterSpec. Field order follows the vim25
// schema sequences.

type filterSpecXML struct {
	XMLName   xml.Name        `xml:"specSet"`
	PropSet   []propSpecXML   `xml:"propSet"`
	ObjectSet []objectSpecXML `xml:"objectSet"`
}

type propSpecXML struct {
	Type    string   `xml:"type"`
	All     bool     `xml:"all"`
	PathSet []string `xml:"pathSet,omitempty"`
}

type objectSpecXML struct {
	Obj       ManagedObjectReference `xml:"obj"`
	Skip      bool                   `xml:"skip"`
	SelectSet []traversalSpecXML     `xml:"selectSet,omitempty"`
}

type traversalSpecXML struct {
	XsiType   string             `xml:"xsi:type,attr"` // "TraversalSpec"
	Name      string             `xml:"name"`
	Type      string             `xml:"type"`
	Path      string             `xml:"path"`
	Skip      bool               `xml:"skip"`
	SelectSet []selectionSpecXML `xml:"selectSet,omitempty"`
}

type selectionSpecXML struct {
	XsiType string `xml:"xsi:type,attr"` // "SelectionSpec"
	Name    string `xml:"name"`
}

type retrieveOptionsXML struct {
	XMLName    xml.Name `xml:"options"`
	MaxObjects *int     `xml:"maxObjects,omitempty"`
}

// buildObjectSpec turns a root reference plus a select-set graph into one
// wire objectSet stanza. Validation is local only: every select set needs
// a non-empty name and path. Names referenced in Select may be forward
// references; the server resolves the graph (and enforces traversal
// termination on the actual acyclic data).
func buildObjectSpec(root ManagedObjectReference, sets []SelectSet) (objectSpecXML, error) {
	spec := objectSpecXML{Obj: root}
	for _, s := range sets {
		if s.Name == "" {
			return objectSpecXML{}, &ValidationError{Reason: "select set with empty name"}
		}
		if s.Path == "" {
			return objectSpecXML{}, &ValidationError{Reason: "select set " + s.Name + " has empty path"}
		}
		ts := traversalSpecXML{
			XsiType: "TraversalSpec",
			Name:    s.Name,
			Type:    s.Type,
			Path:    s.Path,
			Skip:    s.Skip,
		}
		for _, ref := range s.Select {
			ts.SelectSet = append(ts.SelectSet, selectionSpecXML{XsiType: "SelectionSpec", Name: ref})
		}
		spec.SelectSet = append(spec.SelectSet, ts)
	}
	return spec, nil
}
