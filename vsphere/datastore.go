package vsphere

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/smnsjas/go-vsphere/vim25"
)

// DatastoreFile is one file found by FindFiles.
type DatastoreFile struct {
	// Path is the full datastore path, "[datastore] folder/file".
	Path string
	// SizeBytes is the file size as reported (0 when not reported).
	Size string
}

// FindFiles searches a datastore recursively for files matching the glob
// pattern (e.g. "*.vmdk") and returns their datastore paths.
func (c *Client) FindFiles(ctx context.Context, datastoreName, pattern string) ([]DatastoreFile, error) {
	if pattern == "" {
		return nil, &vim25.ValidationError{Reason: "search pattern is empty"}
	}

	browser, err := c.datastoreBrowser(ctx, datastoreName)
	if err != nil {
		return nil, err
	}

	m := vim25.NewMethod("SearchDatastoreSubFolders_Task", browser).
		Elem("datastorePath", fmt.Sprintf("[%s]", datastoreName)).
		Spec(searchSpecXML{MatchPattern: []string{pattern}})

	result, err := c.core.RunTask(ctx, m, 0)
	if err != nil {
		return nil, err
	}
	return extractSearchResults(result), nil
}

// ListDatastorePath lists one datastore folder without recursing into
// subfolders. An empty folder lists the datastore root.
func (c *Client) ListDatastorePath(ctx context.Context, datastoreName, folder string) ([]DatastoreFile, error) {
	browser, err := c.datastoreBrowser(ctx, datastoreName)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("[%s]", datastoreName)
	if folder != "" {
		path += " " + folder
	}
	m := vim25.NewMethod("SearchDatastore_Task", browser).
		Elem("datastorePath", path)

	result, err := c.core.RunTask(ctx, m, 0)
	if err != nil {
		return nil, err
	}
	return extractSearchResults(result), nil
}

// datastoreBrowser resolves the browser reference of a datastore by name.
func (c *Client) datastoreBrowser(ctx context.Context, datastoreName string) (vim25.ManagedObjectReference, error) {
	props, err := c.GetProperties(ctx, "Datastore", datastoreName, []string{"browser"})
	if err != nil {
		return vim25.ManagedObjectReference{}, err
	}
	browser, ok := props["browser"].(vim25.ManagedObjectReference)
	if !ok {
		return vim25.ManagedObjectReference{}, &vim25.ProtocolError{Op: "datastore browser", Reason: "datastore has no browser reference"}
	}
	return browser, nil
}

type searchSpecXML struct {
	XMLName      xml.Name `xml:"searchSpec"`
	MatchPattern []string `xml:"matchPattern"`
}

// extractSearchResults flattens the task result
// (HostDatastoreBrowserSearchResults records) into file paths.
func extractSearchResults(result any) []DatastoreFile {
	var files []DatastoreFile
	for _, item := range asList(result) {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		folder, _ := rec["folderPath"].(string)
		for _, f := range asList(rec["file"]) {
			fileRec, ok := f.(map[string]any)
			if !ok {
				continue
			}
			path, _ := fileRec["path"].(string)
			if path == "" {
				continue
			}
			size, _ := fileRec["fileSize"].(string)
			files = append(files, DatastoreFile{
				Path: joinDatastorePath(folder, path),
				Size: size,
			})
		}
	}
	return files
}

func joinDatastorePath(folder, path string) string {
	if folder == "" {
		return path
	}
	if folder[len(folder)-1] == ']' {
		return folder + " " + path
	}
	if folder[len(folder)-1] == '/' {
		return folder + path
	}
	return folder + "/" + path
}
