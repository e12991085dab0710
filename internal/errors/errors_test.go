package errors

import (
	goerrors "errors"
	"fmt"
	"testing"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name  string
		err   *BridgeError
		body  string
		ct    string
	}{
		{
			name: "backend payload forwarded verbatim",
			err:  Backend(404, `{"error":"not found"}`, "application/json"),
			body: `{"error":"not found"}`,
			ct:   "application/json",
		},
		{
			name: "backend without content type",
			err:  Backend(503, "unavailable", ""),
			body: "unavailable",
			ct:   "text/plain",
		},
		{
			name: "configuration error uses message",
			err:  Configurationf("domain_path not configured for operation %s", "getCliente"),
			body: "domain_path not configured for operation getCliente",
			ct:   "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tt.err.Payload()
			if body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
			if ct != tt.ct {
				t.Errorf("content type = %q, want %q", ct, tt.ct)
			}
		})
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := goerrors.New("connection refused")
	err := Transport(cause)

	if !goerrors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", err.StatusCode)
	}
}

func TestAsBridgeError(t *testing.T) {
	be := Protocolf("malformed SOAP envelope")
	wrapped := fmt.Errorf("handling request: %w", be)

	got, ok := AsBridgeError(wrapped)
	if !ok {
		t.Fatal("AsBridgeError failed on wrapped error")
	}
	if got.Kind != KindProtocol {
		t.Errorf("kind = %v, want KindProtocol", got.Kind)
	}

	if _, ok := AsBridgeError(goerrors.New("plain")); ok {
		t.Error("plain error must not convert")
	}
	if _, ok := AsBridgeError(nil); ok {
		t.Error("nil must not convert")
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindConfiguration:        "configuration",
		KindProtocol:             "protocol",
		KindUnsupportedOperation: "unsupported_operation",
		KindBackendInvocation:    "backend_invocation",
		KindCircuitOpen:          "circuit_open",
		Kind(99):                 "unknown",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
