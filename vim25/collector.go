package vim25

import (
	"context"
	"encoding/xml"
	"fmt"
)

// Query describes one property retrieval.
type Query struct {
	// Type is the managed object type to collect properties for.
	Type string

	// Object restricts the query to a single object instead of a
	// traversal. When set, no select-set graph is used.
	Object *ManagedObjectReference

	// Root overrides the traversal root (default: the root folder).
	Root *ManagedObjectReference

	// Graph overrides the canonical traversal graph for Type.
	Graph []SelectSet

	// Properties lists the property paths to retrieve. Empty means all
	// properties.
	Properties []string

	// Where keeps only objects whose named properties equal the given
	// values. Filtering is client-side, after retrieval; the filtered-on
	// properties are added to the retrieval set when missing.
	Where map[string]string

	// PageSize caps objects per response page (maxObjects). Zero leaves
	// paging to the server. PageSize controls round trips, never the
	// result: pagination is transparent.
	PageSize int

	// KeepTypes preserves xsi:type discriminators in nested records
	// (under the TypeKey key), needed to tell polymorphic server types
	// apart, e.g. virtual device classes.
	KeepTypes bool
}

// Retrieve walks the inventory per the query and returns a flat bag of
// object → property → value. An empty bag is a valid outcome, not an
// error. The bag only ever contains objects reachable by the query's
// traversal graph from its root.
func (c *Client) Retrieve(ctx context.Context, q Query) (PropertyBag, error) {
	if q.Type == "" && q.Object != nil {
		q.Type = q.Object.Type
	}
	if q.Type == "" {
		return nil, &ValidationError{Reason: "query type is empty"}
	}

	sc, err := c.ServiceContent(ctx)
	if err != nil {
		return nil, err
	}

	// Property spec: explicit paths, or the all-properties flag. The
	// where-filtered properties must be present for the client-side
	// comparison to see them.
	props := append([]string(nil), q.Properties...)
	if len(props) > 0 {
		for k := range q.Where {
			found := false
			for _, p := range props {
				if p == k {
					found = true
					break
				}
			}
			if !found {
				props = append(props, k)
			}
		}
	}

	objectSet, err := c.objectSetFor(q, sc)
	if err != nil {
		return nil, err
	}

	filter := filterSpecXML{
		PropSet:   []propSpecXML{{Type: q.Type, All: len(props) == 0, PathSet: props}},
		ObjectSet: []objectSpecXML{objectSet},
	}
	options := retrieveOptionsXML{}
	if q.PageSize > 0 {
		n := q.PageSize
		options.MaxObjects = &n
	}

	m := NewMethod("RetrievePropertiesEx", sc.PropertyCollector).
		Spec(filter).
		Spec(options)

	bag := PropertyBag{}
	body, err := c.Call(ctx, m)
	if err != nil {
		return nil, err
	}
	token, err := mergePage(bag, body, "RetrievePropertiesExResponse", q.KeepTypes)
	if err != nil {
		return nil, err
	}

	// Continuation loop: the server signals more data with a single-use
	// token; its absence terminates. A mid-pagination failure fails the
	// whole retrieval, never a partial bag.
	for token != "" {
		cont := NewMethod("ContinueRetrievePropertiesEx", sc.PropertyCollector).
			Elem("token", token)
		body, err = c.Call(ctx, cont)
		if err != nil {
			return nil, err
		}
		token, err = mergePage(bag, body, "ContinueRetrievePropertiesExResponse", q.KeepTypes)
		if err != nil {
			return nil, err
		}
	}

	if len(q.Where) > 0 {
		if err := filterBag(bag, q.Where); err != nil {
			return nil, err
		}
	}
	return bag, nil
}

// objectSetFor synthesizes a trivial one-object set for single-MOID
// queries, or builds the (supplied or canonical) traversal graph.
func (c *Client) objectSetFor(q Query, sc *ServiceContent) (objectSpecXML, error) {
	if q.Object != nil {
		return objectSpecXML{Obj: *q.Object}, nil
	}

	graph := q.Graph
	if graph == nil {
		var err error
		graph, err = Graph(q.Type)
		if err != nil {
			return objectSpecXML{}, err
		}
	}
	root := sc.RootFolder
	if q.Root != nil {
		root = *q.Root
	}
	return buildObjectSpec(root, graph)
}

// Wire shapes of a retrieval response page.

type objectContentXML struct {
	Obj     ManagedObjectReference `xml:"obj"`
	PropSet []struct {
		Name string        `xml:"name"`
		Val  propertyValue `xml:"val"`
	} `xml:"propSet"`
}

type retrieveResultXML struct {
	Token   string             `xml:"token"`
	Objects []objectContentXML `xml:"objects"`
}

// mergePage flattens one response page into the bag and returns the
// continuation token, if any. A body that does not parse as the expected
// response element is a ProtocolError.
func mergePage(bag PropertyBag, body []byte, responseElem string, keepTypes bool) (string, error) {
	if len(body) == 0 {
		return "", &ProtocolError{Op: responseElem, Reason: "empty response body"}
	}

	var env struct {
		XMLName xml.Name `xml:"Envelope"`
		Body    pageBody `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", &ProtocolError{Op: responseElem, Reason: "unparseable response", Cause: err}
	}

	var result *retrieveResultXML
	switch responseElem {
	case "RetrievePropertiesExResponse":
		if env.Body.RetrieveElem != nil {
			result = env.Body.RetrieveElem.Returnval
		}
	case "ContinueRetrievePropertiesExResponse":
		if env.Body.ContinueElem != nil {
			result = env.Body.ContinueElem.Returnval
		}
	}
	if result == nil {
		// A missing returnval is a legal empty result, but only when the
		// response element itself is present.
		if env.Body.sawResponse(responseElem) {
			return "", nil
		}
		return "", &ProtocolError{Op: responseElem, Reason: "response element missing"}
	}

	for _, obj := range result.Objects {
		props := bag[obj.Obj]
		if props == nil {
			props = map[string]any{}
			bag[obj.Obj] = props
		}
		for _, p := range obj.PropSet {
			if !keepTypes {
				stripTypes(p.Val.Value)
			}
			props[p.Name] = p.Val.Value
		}
	}
	return result.Token, nil
}

type pageBody struct {
	RetrieveElem *struct {
		Returnval *retrieveResultXML `xml:"returnval"`
	} `xml:"RetrievePropertiesExResponse"`
	ContinueElem *struct {
		Returnval *retrieveResultXML `xml:"returnval"`
	} `xml:"ContinueRetrievePropertiesExResponse"`
}

func (b *pageBody) sawResponse(elem string) bool {
	switch elem {
	case "RetrievePropertiesExResponse":
		return b.RetrieveElem != nil
	case "ContinueRetrievePropertiesExResponse":
		return b.ContinueElem != nil
	}
	return false
}

// filterBag drops objects not matching every where pair. Scalars compare
// as strings; a managed object reference compares by its id (the explicit
// reference unwrap). Any other value shape under a where key is a caller
// error, never a silent guess.
func filterBag(bag PropertyBag, where map[string]string) error {
	for ref, props := range bag {
		match := true
		for key, want := range where {
			val, ok := props[key]
			if !ok {
				match = false
				break
			}
			switch v := val.(type) {
			case string:
				if v != want {
					match = false
				}
			case ManagedObjectReference:
				if v.Value != want {
					match = false
				}
			default:
				return &ValidationError{Reason: fmt.Sprintf("where filter on %s: property is %T, not a scalar", key, val)}
			}
			if !match {
				break
			}
		}
		if !match {
			delete(bag, ref)
		}
	}
	return nil
}
