// Package wsdl synthesizes a WSDL 1.1 contract from a service's configured
// operations. Every operation gets unstructured (xsd:any, lax) request and
// response elements; the configuration carries no schema knowledge.
package wsdl

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/xmlconv"
)

const (
	wsdlNS         = "http://schemas.xmlsoap.org/wsdl/"
	soapNS         = "http://schemas.xmlsoap.org/wsdl/soap/"
	xsdNS          = "http://www.w3.org/2001/XMLSchema"
	namespacePrefix = "http://softslim.com/gateway/"
)

// Build renders the WSDL document for a service. endpointURL becomes the
// soap:address location of the single port.
func Build(serviceName string, svc config.ServiceDefinition, endpointURL string) string {
	safeName := xmlconv.Sanitize(serviceName)
	targetNamespace := namespacePrefix + safeName
	wsdlServiceName := capitalize(safeName) + "Service"
	portTypeName := capitalize(safeName) + "PortType"
	bindingName := capitalize(safeName) + "Binding"

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	defs := doc.CreateElement("wsdl:definitions")
	defs.CreateAttr("xmlns:wsdl", wsdlNS)
	defs.CreateAttr("xmlns:soap", soapNS)
	defs.CreateAttr("xmlns:xsd", xsdNS)
	defs.CreateAttr("xmlns:tns", targetNamespace)
	defs.CreateAttr("targetNamespace", targetNamespace)

	appendTypes(defs, svc, targetNamespace)
	appendMessages(defs, svc)
	appendPortType(defs, svc, portTypeName)
	appendBinding(defs, svc, bindingName, portTypeName)
	appendService(defs, wsdlServiceName, bindingName, endpointURL)

	out, _ := doc.WriteToString()
	return out
}

func appendTypes(defs *etree.Element, svc config.ServiceDefinition, targetNamespace string) {
	types := defs.CreateElement("wsdl:types")
	schema := types.CreateElement("xsd:schema")
	schema.CreateAttr("targetNamespace", targetNamespace)

	for _, op := range svc.Rest.Paths {
		name := xmlconv.Sanitize(op.Operation)
		appendAnyElement(schema, name)
		appendAnyElement(schema, name+"Response")
	}
}

func appendAnyElement(schema *etree.Element, name string) {
	el := schema.CreateElement("xsd:element")
	el.CreateAttr("name", name)
	seq := el.CreateElement("xsd:complexType").CreateElement("xsd:sequence")
	anyEl := seq.CreateElement("xsd:any")
	anyEl.CreateAttr("minOccurs", "0")
	anyEl.CreateAttr("maxOccurs", "unbounded")
	anyEl.CreateAttr("processContents", "lax")
}

func appendMessages(defs *etree.Element, svc config.ServiceDefinition) {
	for _, op := range svc.Rest.Paths {
		name := xmlconv.Sanitize(op.Operation)
		for _, suffix := range []string{"Request", "Response"} {
			msg := defs.CreateElement("wsdl:message")
			msg.CreateAttr("name", name+suffix)
			part := msg.CreateElement("wsdl:part")
			part.CreateAttr("name", "parameters")
			element := name
			if suffix == "Response" {
				element = name + "Response"
			}
			part.CreateAttr("element", "tns:"+element)
		}
	}
}

func appendPortType(defs *etree.Element, svc config.ServiceDefinition, portTypeName string) {
	portType := defs.CreateElement("wsdl:portType")
	portType.CreateAttr("name", portTypeName)
	for _, op := range svc.Rest.Paths {
		name := xmlconv.Sanitize(op.Operation)
		operation := portType.CreateElement("wsdl:operation")
		operation.CreateAttr("name", name)
		operation.CreateElement("wsdl:input").CreateAttr("message", "tns:"+name+"Request")
		operation.CreateElement("wsdl:output").CreateAttr("message", "tns:"+name+"Response")
	}
}

func appendBinding(defs *etree.Element, svc config.ServiceDefinition, bindingName, portTypeName string) {
	binding := defs.CreateElement("wsdl:binding")
	binding.CreateAttr("name", bindingName)
	binding.CreateAttr("type", "tns:"+portTypeName)

	soapBinding := binding.CreateElement("soap:binding")
	soapBinding.CreateAttr("style", "document")
	soapBinding.CreateAttr("transport", "http://schemas.xmlsoap.org/soap/http")

	for _, op := range svc.Rest.Paths {
		name := xmlconv.Sanitize(op.Operation)
		operation := binding.CreateElement("wsdl:operation")
		operation.CreateAttr("name", name)
		operation.CreateElement("soap:operation").CreateAttr("soapAction", name)
		operation.CreateElement("wsdl:input").CreateElement("soap:body").CreateAttr("use", "literal")
		operation.CreateElement("wsdl:output").CreateElement("soap:body").CreateAttr("use", "literal")
	}
}

func appendService(defs *etree.Element, wsdlServiceName, bindingName, endpointURL string) {
	service := defs.CreateElement("wsdl:service")
	service.CreateAttr("name", wsdlServiceName)
	port := service.CreateElement("wsdl:port")
	port.CreateAttr("name", wsdlServiceName+"Port")
	port.CreateAttr("binding", "tns:"+bindingName)
	port.CreateElement("soap:address").CreateAttr("location", endpointURL)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
