// Package fault assembles SOAP response envelopes for both outcomes of the
// dispatch pipeline. Success and failure share one uniform response shape
// (success, statusCode, dataRedeable, data) so SOAP clients can branch on a
// single contract.
package fault

import (
	"fmt"
	"strings"

	"github.com/softslim/soapbridge/internal/errors"
	"github.com/softslim/soapbridge/internal/xmlconv"
)

const (
	// DefaultNamespace is used when the inbound request's namespace was
	// never captured (parse failed before the operation element).
	DefaultNamespace = "http://softslim.com/gateway"

	// DefaultOperation names the response element when the operation was
	// never extracted.
	DefaultOperation = "gatewayError"

	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
)

// HTTPResponse is a rendered SOAP response; the body is always text/xml.
type HTTPResponse struct {
	Status int
	Body   string
}

// Success builds the envelope for a completed backend call. The backend body
// is translated to XML when it is valid JSON (an empty body counts as an
// empty JSON object); anything else is carried as escaped plain text with
// dataRedeable=false.
func Success(operation, namespace string, backendStatus int, backendBody string) HTTPResponse {
	if backendBody == "" {
		backendBody = "{}"
	}
	data, readable := xmlconv.FromJSON(backendBody)
	if !readable {
		data = xmlconv.Escape(backendBody)
	}
	return HTTPResponse{
		Status: 200,
		Body:   envelope(operation, namespace, true, backendStatus, readable, data),
	}
}

// FromError builds the fault envelope for any pipeline error. Backend
// invocation errors forward the backend's status and payload; every other
// kind surfaces with statusCode 0 and the error message. The outer HTTP
// status is the backend status when positive, else 500.
func FromError(operation, namespace string, err error) HTTPResponse {
	statusCode := 0
	payload := "unknown error"
	contentType := "text/plain"

	if err != nil {
		payload = err.Error()
	}
	if be, ok := errors.AsBridgeError(err); ok {
		statusCode = be.StatusCode
		payload, contentType = be.Payload()
	}

	data, readable := formatPayload(payload, contentType)

	httpStatus := 500
	if statusCode > 0 {
		httpStatus = statusCode
	}
	return HTTPResponse{
		Status: httpStatus,
		Body:   envelope(operation, namespace, false, statusCode, readable, data),
	}
}

// formatPayload converts a JSON error payload to XML when possible; the
// dataRedeable flag is true only for that case.
func formatPayload(payload, contentType string) (string, bool) {
	if strings.Contains(strings.ToLower(contentType), "json") {
		if data, ok := xmlconv.FromJSON(payload); ok {
			return data, true
		}
	}
	return xmlconv.Escape(payload), false
}

func envelope(operation, namespace string, success bool, statusCode int, dataRedeable bool, data string) string {
	if operation == "" {
		operation = DefaultOperation
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	name := xmlconv.Sanitize(operation) + "Response"

	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<soap:Envelope xmlns:soap="%s">`+
			`<soap:Body>`+
			`<ns:%s xmlns:ns="%s">`+
			`<success>%t</success>`+
			`<statusCode>%d</statusCode>`+
			`<dataRedeable>%t</dataRedeable>`+
			`<data>%s</data>`+
			`</ns:%s>`+
			`</soap:Body>`+
			`</soap:Envelope>`,
		soapEnvelopeNS,
		name, xmlconv.Escape(namespace),
		success, statusCode, dataRedeable, data,
		name,
	)
}
