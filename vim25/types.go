package vim25

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// ManagedObjectReference identifies a server-side entity (VM, host,
// datastore, ...) as an opaque (type, value) pair. It is never dereferenced
// locally; the server is the only authority on what it points at.
type ManagedObjectReference struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// String returns the reference in "Type:value" form.
func (r ManagedObjectReference) String() string {
	return r.Type + ":" + r.Value
}

// IsZero reports whether the reference is unset.
func (r ManagedObjectReference) IsZero() bool {
	return r.Type == "" && r.Value == ""
}

// TypeKey is the record key carrying a nested record's xsi:type
// discriminator. It is stripped from retrieval results unless the query
// asks for it (Query.KeepTypes), which is needed to tell apart
// polymorphic server types such as virtual device classes.
const TypeKey = "@type"

// stripTypes removes type discriminators from a decoded value, in place
// for records.
func stripTypes(v any) {
	switch val := v.(type) {
	case map[string]any:
		delete(val, TypeKey)
		for _, child := range val {
			stripTypes(child)
		}
	case []any:
		for _, child := range val {
			stripTypes(child)
		}
	}
}

// PropertyBag maps managed object references to their retrieved properties.
// Property values are passed through opaquely: a value is a string for
// scalars, a ManagedObjectReference for reference-typed properties, a
// []any for arrays and a map[string]any for nested records.
type PropertyBag map[ManagedObjectReference]map[string]any

// SelectSet is one named node of a traversal graph: starting from objects
// of Type, follow the property Path to reach children, then recurse into
// the select sets named in Select. Names may forward-reference (the server
// resolves the graph), so mutually recursive sets are legal.
type SelectSet struct {
	Name   string
	Type   string
	Path   string
	Skip   bool
	Select []string
}

// ServiceContent holds the well-known managed object references discovered
// from the ServiceInstance at connect time.
type ServiceContent struct {
	RootFolder        ManagedObjectReference `xml:"rootFolder"`
	PropertyCollector ManagedObjectReference `xml:"propertyCollector"`
	SessionManager    ManagedObjectReference `xml:"sessionManager"`
	OptionManager     ManagedObjectReference `xml:"setting"`
	SearchIndex       ManagedObjectReference `xml:"searchIndex"`
	GuestOpsManager   ManagedObjectReference `xml:"guestOperationsManager"`
	About             AboutInfo              `xml:"about"`
}

// AboutInfo describes the server product, as reported by the service.
type AboutInfo struct {
	FullName   string `xml:"fullName"`
	Vendor     string `xml:"vendor"`
	Version    string `xml:"version"`
	Build      string `xml:"build"`
	APIType    string `xml:"apiType"`
	APIVersion string `xml:"apiVersion"`
}

// TaskInfo is the client-side view of a server task's info property.
type TaskInfo struct {
	Task    ManagedObjectReference
	State   string
	Message string // localized fault message when State == TaskStateError
	Result  any    // result payload when State == TaskStateSuccess
	Raw     any    // the full decoded info record
}

// taskInfoFromValue builds a TaskInfo from the opaquely decoded "info"
// property of a Task object.
func taskInfoFromValue(task ManagedObjectReference, v any) (*TaskInfo, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, &ProtocolError{Op: "task info", Reason: fmt.Sprintf("info is %T, want record", v)}
	}
	info := &TaskInfo{Task: task, Raw: rec}
	if s, ok := rec["state"].(string); ok {
		info.State = s
	}
	info.Result = rec["result"]
	if errRec, ok := rec["error"].(map[string]any); ok {
		if msg, ok := errRec["localizedMessage"].(string); ok {
			info.Message = msg
		}
	}
	return info, nil
}

// Property value decoding.
//
// Server property values are open-ended XML: scalars, nested records,
// arrays, and managed object references discriminated by xsi:type. The
// xsi:type attribute is stripped during decoding except for references,
// where it is needed to produce a ManagedObjectReference value.

// propertyValue decodes one <val> element (or any property-shaped element)
// into an opaque Go value.
type propertyValue struct {
	Value any
}

func (p *propertyValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	v, err := decodeValue(d, start)
	if err != nil {
		return err
	}
	p.Value = v
	return nil
}

// isArrayOf reports whether an xsi:type names a vim25 array wrapper, with
// or without a namespace prefix (ArrayOfOptionValue, vim25:ArrayOfVirtualDevice).
func isArrayOf(t string) bool {
	if i := strings.IndexByte(t, ':'); i >= 0 {
		t = t[i+1:]
	}
	return strings.HasPrefix(t, "ArrayOf")
}

func xsiType(start xml.StartElement) string {
	for _, a := range start.Attr {
		if a.Name.Local == "type" && (a.Name.Space == NsXsi || a.Name.Space == "xsi") {
			return a.Value
		}
	}
	return ""
}

// decodeValue consumes the element opened by start and returns its decoded
// value. Leaf elements become strings, ArrayOf-typed wrappers and repeated
// child names become lists, and reference-typed elements become
// ManagedObjectReference values.
func decodeValue(d *xml.Decoder, start xml.StartElement) (any, error) {
	isRef := false
	t := xsiType(start)
	if t == "ManagedObjectReference" || start.Name.Local == "ManagedObjectReference" {
		isRef = true
	}
	refType := ""
	for _, a := range start.Attr {
		if a.Name.Local == "type" && a.Name.Space == "" {
			refType = a.Value
		}
	}

	var text []byte
	children := map[string][]any{}
	var order []string

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.CharData:
			text = append(text, el...)
		case xml.StartElement:
			child, err := decodeValue(d, el)
			if err != nil {
				return nil, err
			}
			name := el.Name.Local
			if _, seen := children[name]; !seen {
				order = append(order, name)
			}
			children[name] = append(children[name], child)
		case xml.EndElement:
			if isRef {
				return ManagedObjectReference{Type: refType, Value: string(text)}, nil
			}
			// An ArrayOf wrapper is a list no matter how many children it
			// holds; repetition alone cannot tell a one-element array from
			// a one-field record.
			if isArrayOf(t) {
				var list []any
				for _, name := range order {
					list = append(list, children[name]...)
				}
				return list, nil
			}
			if len(children) == 0 {
				return string(text), nil
			}
			// Homogeneous repeated child: an array value.
			if len(order) == 1 && len(children[order[0]]) > 1 {
				return children[order[0]], nil
			}
			rec := make(map[string]any, len(children))
			for name, vals := range children {
				if len(vals) == 1 {
					rec[name] = vals[0]
				} else {
					rec[name] = vals
				}
			}
			if t != "" {
				rec[TypeKey] = t
			}
			return rec, nil
		}
	}
}
