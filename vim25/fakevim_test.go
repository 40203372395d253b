package vim25

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/smnsjas/go-vsphere/vim25/transport"
)

// fakeVim is a scriptable vim25 endpoint for tests. It dispatches on the
// method element of each request body and answers with canned envelopes.
type fakeVim struct {
	t  *testing.T
	mu sync.Mutex

	logins   int
	requests []string // method names in arrival order

	// failAuth makes the next N non-login calls answer with a
	// NotAuthenticated fault.
	failAuth int

	// optionSettings is the <objects> stanza served for the post-login
	// OptionManager probe. Empty serves an empty result.
	optionSettings string

	// handlers overrides responses per method name. A handler returns
	// the HTTP status and the full response body.
	handlers map[string]func(body string) (int, string)
}

var methodRe = regexp.MustCompile(`<([A-Za-z_]+) xmlns="urn:internalvim25">`)

func newFakeVim(t *testing.T) (*fakeVim, *Client, *httptest.Server) {
	t.Helper()
	f := &fakeVim{t: t, handlers: map[string]func(string) (int, string){}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		status, resp := f.respond(string(body))
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "root", "secret", transport.NewHTTPTransport())
	return f, client, server
}

func (f *fakeVim) on(method string, h func(body string) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeVim) count(method string) int {
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

func (f *fakeVim) respond(body string) (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := methodRe.FindStringSubmatch(body)
	if m == nil {
		f.t.Errorf("request without vim25 method element: %s", body)
		return http.StatusBadRequest, ""
	}
	method := m[1]
	f.requests = append(f.requests, method)

	// The idle-timeout probe targets the OptionManager right after login;
	// keep it out of the scripted flow.
	if method == "RetrievePropertiesEx" && strings.Contains(body, ">OptionManager<") {
		return http.StatusOK, retrieveResponse("", f.optionSettings)
	}

	switch method {
	case "Login", "Logout", "RetrieveServiceContent":
	default:
		if f.failAuth > 0 {
			f.failAuth--
			return http.StatusInternalServerError, faultResponse("The session is not authenticated.", "NotAuthenticatedFault")
		}
	}

	if h, ok := f.handlers[method]; ok {
		return h(body)
	}

	switch method {
	case "RetrieveServiceContent":
		return http.StatusOK, serviceContentResponse
	case "Login":
		f.logins++
		return http.StatusOK, soapEnvelope(`<LoginResponse xmlns="urn:internalvim25"><returnval><key>sess</key><userName>root</userName></returnval></LoginResponse>`)
	case "Logout":
		return http.StatusOK, soapEnvelope(`<LogoutResponse xmlns="urn:internalvim25"></LogoutResponse>`)
	}

	f.t.Errorf("no handler for method %s", method)
	return http.StatusInternalServerError, faultResponse("unhandled method "+method, "RuntimeFault")
}

// Envelope building helpers for canned responses.

func soapEnvelope(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"
                  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<soapenv:Body>` + inner + `</soapenv:Body>
</soapenv:Envelope>`
}

func faultResponse(message, detailType string) string {
	return soapEnvelope(`<soapenv:Fault>
  <faultcode>ServerFaultCode</faultcode>
  <faultstring>` + message + `</faultstring>
  <detail><` + detailType + ` xsi:type="` + strings.TrimSuffix(detailType, "Fault") + `"></` + detailType + `></detail>
</soapenv:Fault>`)
}

var serviceContentResponse = soapEnvelope(`<RetrieveServiceContentResponse xmlns="urn:internalvim25">
<returnval>
  <rootFolder type="Folder">group-d1</rootFolder>
  <propertyCollector type="PropertyCollector">propertyCollector</propertyCollector>
  <sessionManager type="SessionManager">SessionManager</sessionManager>
  <setting type="OptionManager">VpxSettings</setting>
  <searchIndex type="SearchIndex">SearchIndex</searchIndex>
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

// retrieveResponse builds a RetrievePropertiesExResponse with an optional
// continuation token.
func retrieveResponse(token string, objects ...string) string {
	var b strings.Builder
	b.WriteString(`<RetrievePropertiesExResponse xmlns="urn:internalvim25"><returnval>`)
	if token != "" {
		b.WriteString(`<token>` + token + `</token>`)
	}
	for _, obj := range objects {
		b.WriteString(obj)
	}
	b.WriteString(`</returnval></RetrievePropertiesExResponse>`)
	return soapEnvelope(b.String())
}

func continueResponse(token string, objects ...string) string {
	var b strings.Builder
	b.WriteString(`<ContinueRetrievePropertiesExResponse xmlns="urn:internalvim25"><returnval>`)
	if token != "" {
		b.WriteString(`<token>` + token + `</token>`)
	}
	for _, obj := range objects {
		b.WriteString(obj)
	}
	b.WriteString(`</returnval></ContinueRetrievePropertiesExResponse>`)
	return soapEnvelope(b.String())
}

// vmObject builds an <objects> stanza for a VirtualMachine with string
// properties.
func vmObject(id string, props map[string]string) string {
	var b strings.Builder
	b.WriteString(`<objects><obj type="VirtualMachine">` + id + `</obj>`)
	for name, val := range props {
		b.WriteString(`<propSet><name>` + name + `</name><val xsi:type="xsd:string">` + val + `</val></propSet>`)
	}
	b.WriteString(`</objects>`)
	return b.String()
}

// taskInfoObject builds an <objects> stanza for a Task's info property.
func taskInfoObject(taskID, state, result, errMsg string) string {
	var b strings.Builder
	b.WriteString(`<objects><obj type="Task">` + taskID + `</obj><propSet><name>info</name><val xsi:type="TaskInfo">`)
	b.WriteString(`<key>` + taskID + `</key><state>` + state + `</state>`)
	if result != "" {
		b.WriteString(`<result xsi:type="xsd:string">` + result + `</result>`)
	}
	if errMsg != "" {
		b.WriteString(`<error><localizedMessage>` + errMsg + `</localizedMessage><fault xsi:type="RuntimeFault"></fault></error>`)
	}
	b.WriteString(`</val></propSet></objects>`)
	return b.String()
}
