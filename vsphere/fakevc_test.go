package vsphere

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/smnsjas/go-vsphere/vim25"
	"github.com/smnsjas/go-vsphere/vim25/transport"
)

// fakeVC is a minimal scriptable vCenter endpoint. Session plumbing
// (service content, login, logout, the option probe) is handled with
// canned answers; everything else dispatches to registered handlers.
type fakeVC struct {
	t  *testing.T
	mu sync.Mutex

	requests []string
	handlers map[string]func(body string) (int, string)
}

var vcMethodRe = regexp.MustCompile(`<([A-Za-z_]+) xmlns="urn:internalvim25">`)

func newTestClient(t *testing.T) (*fakeVC, *Client) {
	t.Helper()
	f := &fakeVC{t: t, handlers: map[string]func(string) (int, string){}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		status, resp := f.respond(string(body))
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)

	c := &Client{
		core:  vim25.NewClient(server.URL, "root", "secret", transport.NewHTTPTransport()),
		cache: NewMapCache(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return f, c
}

func (f *fakeVC) on(method string, h func(body string) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeVC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.requests {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeVC) respond(body string) (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := vcMethodRe.FindStringSubmatch(body)
	if m == nil {
		f.t.Errorf("request without vim25 method element: %s", body)
		return http.StatusBadRequest, ""
	}
	method := m[1]
	f.requests = append(f.requests, method)

	if method == "RetrievePropertiesEx" && strings.Contains(body, ">OptionManager<") {
		return http.StatusOK, vcEnvelope(`<RetrievePropertiesExResponse xmlns="urn:internalvim25"><returnval></returnval></RetrievePropertiesExResponse>`)
	}

	if h, ok := f.handlers[method]; ok {
		return h(body)
	}

	switch method {
	case "RetrieveServiceContent":
		return http.StatusOK, vcServiceContent
	case "Login":
		return http.StatusOK, vcEnvelope(`<LoginResponse xmlns="urn:internalvim25"><returnval><key>sess</key></returnval></LoginResponse>`)
	case "Logout":
		return http.StatusOK, vcEnvelope(`<LogoutResponse xmlns="urn:internalvim25"></LogoutResponse>`)
	}

	f.t.Errorf("no handler for method %s", method)
	return http.StatusInternalServerError, ""
}

func vcEnvelope(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"
                  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<soapenv:Body>` + inner + `</soapenv:Body>
</soapenv:Envelope>`
}

var vcServiceContent = vcEnvelope(`<RetrieveServiceContentResponse xmlns="urn:internalvim25">
<returnval>
  <rootFolder type="Folder">group-d1</rootFolder>
  <propertyCollector type="PropertyCollector">propertyCollector</propertyCollector>
  <sessionManager type="SessionManager">SessionManager</sessionManager>
  <setting type="OptionManager">VpxSettings</setting>
  <guestOperationsManager type="GuestOperationsManager">guestOperationsManager</guestOperationsManager>
  <about>
    <fullName>VMware vCenter Server 5.5.0</fullName>
    <vendor>VMware, Inc.</vendor>
    <version>5.5.0</version>
    <build>1312298</build>
    <apiType>VirtualCenter</apiType>
    <apiVersion>5.5</apiVersion>
  </about>
</returnval>
</RetrieveServiceContentResponse>`)

// vcRetrieve wraps objects stanzas into a retrieval response.
func vcRetrieve(objects ...string) string {
	var b strings.Builder
	b.WriteString(`<RetrievePropertiesExResponse xmlns="urn:internalvim25"><returnval>`)
	for _, obj := range objects {
		b.WriteString(obj)
	}
	b.WriteString(`</returnval></RetrievePropertiesExResponse>`)
	return vcEnvelope(b.String())
}

func vcVM(id, name string) string {
	return `<objects><obj type="VirtualMachine">` + id + `</obj><propSet><name>name</name><val xsi:type="xsd:string">` + name + `</val></propSet></objects>`
}

func vcTaskInfo(state, errMsg string) string {
	s := `<objects><obj type="Task">task-42</obj><propSet><name>info</name><val xsi:type="TaskInfo"><key>task-42</key><state>` + state + `</state>`
	if errMsg != "" {
		s += `<error><localizedMessage>` + errMsg + `</localizedMessage></error>`
	}
	return s + `</val></propSet></objects>`
}
