package vim25

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Envelope is a SOAP 1.1 envelope wrapping a single vim25 method call.
type Envelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`

	NsSoapEnv string `xml:"xmlns:soapenv,attr"`
	NsXsi     string `xml:"xmlns:xsi,attr"`

	Body envelopeBody `xml:"soapenv:Body"`
}

type envelopeBody struct {
	Content []byte `xml:",innerxml"`
}

// Method builds the body of one vim25 call:
//
//	<Name xmlns="urn:internalvim25"><_this type="T">id</_this> ...args... </Name>
//
// All argument values pass through xml escaping; nested specs are added via
// Spec, which marshals a typed struct, so a malformed or unescaped body
// cannot be produced.
type Method struct {
	name string
	this ManagedObjectReference
	args bytes.Buffer
	err  error
}

// NewMethod starts a method call against the managed object this.
func NewMethod(name string, this ManagedObjectReference) *Method {
	return &Method{name: name, this: this}
}

// Name returns the method name.
func (m *Method) Name() string { return m.name }

// This returns the target managed object reference.
func (m *Method) This() ManagedObjectReference { return m.this }

// Elem appends a simple <name>value</name> argument with escaping.
func (m *Method) Elem(name, value string) *Method {
	if m.err != nil {
		return m
	}
	m.args.WriteString("<" + name + ">")
	if err := xml.EscapeText(&m.args, []byte(value)); err != nil {
		m.err = err
		return m
	}
	m.args.WriteString("</" + name + ">")
	return m
}

// Ref appends a managed object reference argument:
// <name type="T">id</name>.
func (m *Method) Ref(name string, ref ManagedObjectReference) *Method {
	if m.err != nil {
		return m
	}
	m.err = m.marshalInto(struct {
		XMLName xml.Name `xml:""`
		Type    string   `xml:"type,attr"`
		Value   string   `xml:",chardata"`
	}{XMLName: xml.Name{Local: name}, Type: ref.Type, Value: ref.Value})
	return m
}

// Spec appends a typed spec struct, marshalled with encoding/xml. The
// struct's XMLName (or its outermost tag) supplies the element name.
func (m *Method) Spec(spec any) *Method {
	if m.err != nil {
		return m
	}
	m.err = m.marshalInto(spec)
	return m
}

func (m *Method) marshalInto(v any) error {
	out, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	m.args.Write(out)
	return nil
}

// Envelope serializes the call into a complete SOAP envelope.
func (m *Method) Envelope() ([]byte, error) {
	if m.err != nil {
		return nil, fmt.Errorf("build %s: %w", m.name, m.err)
	}
	if m.name == "" {
		return nil, &ValidationError{Reason: "method name is empty"}
	}
	if m.this.Type == "" || m.this.Value == "" {
		return nil, &ValidationError{Reason: "method " + m.name + ": _this reference is incomplete"}
	}

	var body bytes.Buffer
	body.WriteString(`<` + m.name + ` xmlns="` + NsVim25 + `">`)
	body.WriteString(`<_this type="`)
	if err := xml.EscapeText(&body, []byte(m.this.Type)); err != nil {
		return nil, err
	}
	body.WriteString(`">`)
	if err := xml.EscapeText(&body, []byte(m.this.Value)); err != nil {
		return nil, err
	}
	body.WriteString(`</_this>`)
	body.Write(m.args.Bytes())
	body.WriteString(`</` + m.name + `>`)

	env := Envelope{
		NsSoapEnv: NsSoapEnv,
		NsXsi:     NsXsi,
		Body:      envelopeBody{Content: body.Bytes()},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
