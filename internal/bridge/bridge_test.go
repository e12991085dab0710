package bridge

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softslim/soapbridge/config"
)

const clienteNS = "http://softslim.com/gateway/clienteService"

func soapRequest(operation, params string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>`+
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:cli="%s">`+
		`<soapenv:Header/>`+
		`<soapenv:Body><cli:%s>%s</cli:%s></soapenv:Body>`+
		`</soapenv:Envelope>`, clienteNS, operation, params, operation)
}

func securedSoapRequest(operation, params, username, password string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>`+
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:cli="%s">`+
		`<soapenv:Header>`+
		`<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">`+
		`<wsse:UsernameToken>`+
		`<wsse:Username>%s</wsse:Username>`+
		`<wsse:Password>%s</wsse:Password>`+
		`</wsse:UsernameToken>`+
		`</wsse:Security>`+
		`</soapenv:Header>`+
		`<soapenv:Body><cli:%s>%s</cli:%s></soapenv:Body>`+
		`</soapenv:Envelope>`, clienteNS, username, password, operation, params, operation)
}

func bridgeConfig(backendURL string, mutate func(*config.ServiceDefinition)) *config.BridgeConfig {
	svc := config.ServiceDefinition{
		SoapPath:        "/soap/cliente",
		RoutingStrategy: config.RoutingStrategyOperationName,
		Rest: config.RestConfig{
			DomainPath: backendURL,
			Paths: []config.OperationMapping{
				{
					ID:        "get-cliente",
					Operation: "getCliente",
					Path:      "/clientes/${header.clienteId}",
					Method:    "GET",
				},
				{
					ID:        "create-cliente",
					Operation: "createCliente",
					Path:      "/clientes",
					Method:    "POST",
					Headers:   map[string]string{"X-Channel": "SOAP"},
				},
			},
		},
	}
	if mutate != nil {
		mutate(&svc)
	}
	return &config.BridgeConfig{
		Version:  "1.0",
		Services: map[string]config.ServiceDefinition{"clienteService": svc},
	}
}

func postSoap(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/soap/cliente", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBridgeGetClienteSuccess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/clientes/12345", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"12345","nombre":"Ana"}`)
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>12345</clienteId>"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `<ns:getClienteResponse xmlns:ns="`+clienteNS+`">`)
	assert.Contains(t, body, "<success>true</success>")
	assert.Contains(t, body, "<statusCode>200</statusCode>")
	assert.Contains(t, body, "<dataRedeable>true</dataRedeable>")
	assert.Contains(t, body, "<id>12345</id>")
	assert.Contains(t, body, "<nombre>Ana</nombre>")
}

func TestBridgeCreateClientePostsJSON(t *testing.T) {
	var received atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "SOAP", r.Header.Get("X-Channel"))
		body, _ := io.ReadAll(r.Body)
		received.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"999"}`)
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	rec := postSoap(t, handler, soapRequest("createCliente", "<nombre>Ana</nombre><direccion>Calle 1</direccion>"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<statusCode>201</statusCode>")
	assert.Contains(t, rec.Body.String(), "<id>999</id>")

	json, _ := received.Load().(string)
	assert.Contains(t, json, `"nombre":"Ana"`)
	assert.Contains(t, json, `"direccion":"Calle 1"`)
}

func TestBridgeBackendErrorBecomesFault(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"not found"}`)
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>404</clienteId>"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<success>false</success>")
	assert.Contains(t, body, "<statusCode>404</statusCode>")
	assert.Contains(t, body, "<dataRedeable>true</dataRedeable>")
	assert.Contains(t, body, "<error>not found</error>")
}

func TestBridgeUnsupportedOperation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	rec := postSoap(t, handler, soapRequest("deleteCliente", ""))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<ns:deleteClienteResponse`)
	assert.Contains(t, body, "<success>false</success>")
	assert.Contains(t, body, "<statusCode>0</statusCode>")
	assert.Contains(t, body, "deleteCliente")
}

func TestBridgeMissingPathParameter(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	rec := postSoap(t, handler, soapRequest("getCliente", "<otro>1</otro>"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "required header not found for REST path: clienteId")
}

func TestBridgeWsSecurity(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1"}`)
	}))
	defer backend.Close()

	cfg := bridgeConfig(backend.URL, func(svc *config.ServiceDefinition) {
		svc.Security.WsSecurity = &config.WsSecurityConfig{
			Enabled:  true,
			Username: "admin",
			Password: "secret",
		}
	})
	handler := New(cfg).Handler()

	t.Run("valid credentials pass", func(t *testing.T) {
		rec := postSoap(t, handler, securedSoapRequest("getCliente", "<clienteId>1</clienteId>", "admin", "secret"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<success>true</success>")
	})

	t.Run("invalid credentials rejected", func(t *testing.T) {
		rec := postSoap(t, handler, securedSoapRequest("getCliente", "<clienteId>1</clienteId>", "admin", "wrong"))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "<success>false</success>")
		assert.Contains(t, body, "<statusCode>0</statusCode>")
		assert.Contains(t, body, "invalid credentials")
	})

	t.Run("missing token rejected", func(t *testing.T) {
		rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>1</clienteId>"))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "UsernameToken required")
	})
}

func TestBridgeRejectsDoctype(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	}))
	defer backend.Close()

	handler := New(bridgeConfig(backend.URL, nil)).Handler()
	malicious := `<?xml version="1.0"?>` +
		`<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>` +
		soapRequest("getCliente", "<clienteId>&xxe;</clienteId>")
	rec := postSoap(t, handler, malicious)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<success>false</success>")
	assert.Contains(t, body, "DOCTYPE")
	// Parsing failed before the operation was known; defaults apply.
	assert.Contains(t, body, "gatewayErrorResponse")
}

func TestBridgeOAuth2Bearer(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok-abc","expires_in":3600}`)
	}))
	defer auth.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1"}`)
	}))
	defer backend.Close()

	cfg := bridgeConfig(backend.URL, func(svc *config.ServiceDefinition) {
		svc.Security.OAuth2 = &config.OAuth2Config{
			Enabled:      true,
			TokenURI:     auth.URL,
			ClientID:     "bridge",
			ClientSecret: "s3cret",
		}
	})
	handler := New(cfg).Handler()

	rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>1</clienteId>"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<success>true</success>")
}

func TestBridgeOAuth2Incomplete(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	}))
	defer backend.Close()

	cfg := bridgeConfig(backend.URL, func(svc *config.ServiceDefinition) {
		svc.Security.OAuth2 = &config.OAuth2Config{Enabled: true, TokenURI: "http://auth/token"}
	})
	handler := New(cfg).Handler()

	rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>1</clienteId>"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "incomplete OAuth2 configuration for service clienteService")
}

func TestBridgeRetriesBackend(t *testing.T) {
	var calls atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1"}`)
	}))
	defer backend.Close()

	cfg := bridgeConfig(backend.URL, func(svc *config.ServiceDefinition) {
		svc.Resilience = &config.ResilienceConfig{
			Retry: &config.RetryConfig{Enabled: true, MaxAttempts: 3, BackoffMs: 1},
		}
	})
	handler := New(cfg).Handler()

	rec := postSoap(t, handler, soapRequest("getCliente", "<clienteId>1</clienteId>"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<success>true</success>")
	assert.Equal(t, int64(3), calls.Load())
}

func TestBridgeWsdl(t *testing.T) {
	handler := New(bridgeConfig("http://backend", nil)).Handler()

	t.Run("wsdl query serves contract", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/soap/cliente?wsdl", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
		body := rec.Body.String()
		assert.Contains(t, body, "wsdl:definitions")
		assert.Contains(t, body, `name="getCliente"`)
		assert.Contains(t, body, `name="createCliente"`)
		assert.Contains(t, body, `location="http://example.com/soap/cliente"`)
	})

	t.Run("query is case-insensitive", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/soap/cliente?WSDL", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("plain GET is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/soap/cliente", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "WSDL request expected", rec.Body.String())
	})
}

func TestBridgeMalformedXML(t *testing.T) {
	handler := New(bridgeConfig("http://backend", nil)).Handler()
	rec := postSoap(t, handler, "<not even close")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "gatewayErrorResponse")
	assert.Contains(t, body, "malformed SOAP envelope")
}

func TestBridgeUnknownPath(t *testing.T) {
	handler := New(bridgeConfig("http://backend", nil)).Handler()
	req := httptest.NewRequest(http.MethodPost, "/soap/otroServicio", strings.NewReader(soapRequest("getCliente", "")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridgeStats(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer backend.Close()

	b := New(bridgeConfig(backend.URL, nil))
	handler := b.Handler()

	postSoap(t, handler, soapRequest("getCliente", "<clienteId>1</clienteId>"))
	postSoap(t, handler, soapRequest("noSuchOp", ""))

	stats := b.Stats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["total_faults"])
}

func TestRecoverInternalErrors(t *testing.T) {
	handler := recoverInternalErrors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("routing table corrupted")
	}))

	req := httptest.NewRequest(http.MethodPost, "/soap/cliente", nil)
	req.Header.Set("CorrelationId", "corr-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Internal error. correlationId=corr-123", rec.Body.String())
}

func TestRecoverGeneratesCorrelationID(t *testing.T) {
	handler := recoverInternalErrors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/soap/cliente", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Internal error. correlationId="))
	assert.Greater(t, len(body), len("Internal error. correlationId="))
}
