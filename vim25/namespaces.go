package vim25

// Wire constants for the vSphere Web Services (vim25) endpoint.
const (
	// NsVim25 is the XML namespace every method element is qualified with.
	NsVim25 = "urn:internalvim25"

	// NsSoapEnv is the SOAP 1.1 envelope namespace.
	NsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"

	// NsXsi is the XML Schema instance namespace (xsi:type discriminators).
	NsXsi = "http://www.w3.org/2001/XMLSchema-instance"

	// SOAPAction identifies the API version to the server.
	SOAPAction = "urn:vim25/5.0"

	// EndpointPath is the fixed path of the vim service on a vCenter or
	// ESXi host.
	EndpointPath = "/sdk/vimService"
)

// ServiceInstanceMOID is the well-known root managed object every other
// MOID is discovered from via RetrieveServiceContent.
var ServiceInstanceMOID = ManagedObjectReference{Type: "ServiceInstance", Value: "ServiceInstance"}

// Task states as reported in TaskInfo.state.
const (
	TaskStateQueued  = "queued"
	TaskStateRunning = "running"
	TaskStateSuccess = "success"
	TaskStateError   = "error"
)

// VM power states as reported in runtime.powerState.
const (
	PowerStateOn        = "poweredOn"
	PowerStateOff       = "poweredOff"
	PowerStateSuspended = "suspended"
)
