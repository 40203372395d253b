package vsphere

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/smnsjas/go-vsphere/vim25"
)

// FindRef resolves an object name to its managed object reference,
// consulting the cache first. Exactly one match is required: zero matches
// is a *NotFoundError, more than one an *AmbiguousError.
func (c *Client) FindRef(ctx context.Context, objType, name string) (vim25.ManagedObjectReference, error) {
	if ref, ok := c.cache.Lookup(objType, name); ok {
		return ref, nil
	}

	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Type:       objType,
		Properties: []string{"name"},
		Where:      map[string]string{"name": name},
	})
	if err != nil {
		return vim25.ManagedObjectReference{}, err
	}

	switch len(bag) {
	case 0:
		return vim25.ManagedObjectReference{}, &NotFoundError{Type: objType, Name: name}
	case 1:
		for ref := range bag {
			c.cache.Store(objType, name, ref)
			return ref, nil
		}
	}
	return vim25.ManagedObjectReference{}, &AmbiguousError{Type: objType, Name: name, Count: len(bag)}
}

// List returns name -> reference for all reachable objects of the type.
func (c *Client) List(ctx context.Context, objType string) (map[string]vim25.ManagedObjectReference, error) {
	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Type:       objType,
		Properties: []string{"name"},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]vim25.ManagedObjectReference, len(bag))
	for ref, props := range bag {
		name, ok := props["name"].(string)
		if !ok {
			continue
		}
		out[name] = ref
	}
	return out, nil
}

// GetProperty retrieves a single property of a named object.
func (c *Client) GetProperty(ctx context.Context, objType, name, property string) (any, error) {
	props, err := c.GetProperties(ctx, objType, name, []string{property})
	if err != nil {
		return nil, err
	}
	val, ok := props[property]
	if !ok {
		return nil, &NotFoundError{Type: objType + "." + property, Name: name}
	}
	return val, nil
}

// GetProperties retrieves the listed properties (or all, when the list is
// empty) of a named object.
func (c *Client) GetProperties(ctx context.Context, objType, name string, properties []string) (map[string]any, error) {
	ref, err := c.FindRef(ctx, objType, name)
	if err != nil {
		return nil, err
	}
	bag, err := c.core.Retrieve(ctx, vim25.Query{
		Object:     &ref,
		Properties: properties,
	})
	if err != nil {
		return nil, err
	}
	props, ok := bag[ref]
	if !ok {
		// The cached reference went stale between lookups.
		c.cache.Clear()
		return nil, &NotFoundError{Type: objType, Name: name}
	}
	return props, nil
}

// About returns the server product description.
func (c *Client) About(ctx context.Context) (vim25.AboutInfo, error) {
	sc, err := c.core.ServiceContent(ctx)
	if err != nil {
		return vim25.AboutInfo{}, err
	}
	return sc.About, nil
}

// CurrentTime returns the server clock reading, as reported.
func (c *Client) CurrentTime(ctx context.Context) (string, error) {
	body, err := c.core.Call(ctx, vim25.NewMethod("CurrentTime", vim25.ServiceInstanceMOID))
	if err != nil {
		return "", err
	}
	var resp struct {
		XMLName xml.Name `xml:"Envelope"`
		Time    string   `xml:"Body>CurrentTimeResponse>returnval"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse current time: %w", err)
	}
	return resp.Time, nil
}
