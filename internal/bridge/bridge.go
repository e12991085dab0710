// Package bridge compiles the configuration into a static route table and
// dispatches inbound SOAP requests through per-operation pipelines.
package bridge

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/errors"
	"github.com/softslim/soapbridge/internal/fault"
	"github.com/softslim/soapbridge/internal/invoker"
	"github.com/softslim/soapbridge/internal/logging"
	"github.com/softslim/soapbridge/internal/resilience"
	"github.com/softslim/soapbridge/internal/soap"
	"github.com/softslim/soapbridge/internal/token"
	"github.com/softslim/soapbridge/internal/wsdl"
)

// maxRequestBody bounds inbound SOAP bodies; requests are buffered whole.
const maxRequestBody = 10 << 20 // 10MB

// Bridge holds the compiled route table: one service per configured entry,
// one pipeline per operation. It is immutable after New.
type Bridge struct {
	services map[string]*compiledService
	tokens   *token.Manager
	policies *resilience.Cache

	totalRequests atomic.Int64
	totalFaults   atomic.Int64
}

type compiledService struct {
	name       string
	soapPath   string
	definition config.ServiceDefinition
	operations map[string]*pipeline
}

// New compiles the configuration into a Bridge. The route table, mutual-TLS
// identities, and per-operation invokers are built here, once; resilience
// policies and tokens are created lazily at request time.
func New(cfg *config.BridgeConfig) *Bridge {
	b := &Bridge{
		services: make(map[string]*compiledService, len(cfg.Services)),
		tokens:   token.NewManager(),
		policies: resilience.NewCache(),
	}

	for name, def := range cfg.Services {
		svc := &compiledService{
			name:       name,
			soapPath:   def.NormalizedSoapPath(name),
			definition: def,
			operations: make(map[string]*pipeline, len(def.Rest.Paths)),
		}

		tlsCfg, tlsErr := invoker.ClientTLSConfig(def.Security.MutualTLS)
		if tlsErr != nil {
			logging.Warn("mutual TLS identity unavailable for service",
				zap.String("service", name), zap.Error(tlsErr))
		}

		for _, mapping := range def.Rest.Paths {
			svc.operations[mapping.Operation] = &pipeline{
				serviceName: name,
				routeKey:    svc.soapPath + "#" + mapping.Operation,
				mapping:     mapping,
				domainPath:  def.Rest.DomainPath,
				security:    def.Security,
				resilience:  config.ResolveResilience(mapping.Resilience, def.Resilience, cfg.GlobalResilience),
				invoker:     invoker.New(tlsCfg, mapping.Timeout()),
				tlsErr:      tlsErr,
				tokens:      b.tokens,
				policies:    b.policies,
			}
		}

		b.services[name] = svc
		logging.Info("service routes compiled",
			zap.String("service", name),
			zap.String("soap_path", svc.soapPath),
			zap.Int("operations", len(svc.operations)),
		)
	}

	return b
}

// Handler mounts one GET (WSDL) and one POST (dispatch) route per service
// and wraps the router with the generic internal-error handler.
func (b *Bridge) Handler() http.Handler {
	router := httprouter.New()
	for _, svc := range b.services {
		svc := svc
		router.HandlerFunc(http.MethodGet, svc.soapPath, func(w http.ResponseWriter, r *http.Request) {
			b.handleWsdl(w, r, svc)
		})
		router.HandlerFunc(http.MethodPost, svc.soapPath, func(w http.ResponseWriter, r *http.Request) {
			b.handleSoap(w, r, svc)
		})
	}
	return recoverInternalErrors(router)
}

// handleWsdl serves the synthesized contract for GET requests whose query
// string contains "wsdl" (case-insensitive); anything else is a 404.
func (b *Bridge) handleWsdl(w http.ResponseWriter, r *http.Request, svc *compiledService) {
	if !strings.Contains(strings.ToLower(r.URL.RawQuery), "wsdl") {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "WSDL request expected")
		return
	}

	doc := wsdl.Build(svc.name, svc.definition, endpointURL(r, svc.soapPath))
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}

// handleSoap runs the dispatch pipeline for one inbound SOAP request. Every
// failure inside the pipeline is translated to a SOAP fault; nothing is
// silently dropped.
func (b *Bridge) handleSoap(w http.ResponseWriter, r *http.Request, svc *compiledService) {
	b.totalRequests.Add(1)

	correlationID := resolveCorrelationID(r)
	log := logging.WithCorrelation(correlationID)

	operation := ""
	namespace := ""

	resp, err := func() (*invoker.Response, error) {
		body, readErr := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if readErr != nil {
			return nil, errors.Protocolf("failed to read SOAP request body").Wrap(readErr)
		}

		doc, parseErr := soap.ParseDocument(body)
		if parseErr != nil {
			return nil, parseErr
		}
		if secErr := soap.VerifyWsSecurity(doc, svc.definition.Security.WsSecurity); secErr != nil {
			return nil, secErr
		}

		req, extractErr := soap.ExtractRequest(doc)
		if extractErr != nil {
			return nil, extractErr
		}
		operation = req.Operation
		namespace = req.Namespace

		pl, ok := svc.operations[req.Operation]
		if !ok {
			return nil, errors.UnsupportedOperation(svc.name, req.Operation)
		}

		log.Debug("dispatching SOAP operation",
			zap.String("service", svc.name),
			zap.String("operation", req.Operation),
		)
		return pl.execute(r.Context(), req)
	}()

	var out fault.HTTPResponse
	if err != nil {
		b.totalFaults.Add(1)
		log.Error("SOAP dispatch failed",
			zap.String("service", svc.name),
			zap.String("operation", operation),
			zap.Error(err),
		)
		out = fault.FromError(operation, namespace, err)
	} else {
		out = fault.Success(operation, namespace, resp.Status, string(resp.Body))
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(out.Status)
	io.WriteString(w, out.Body)
}

// Stats returns bridge-level counters plus breaker snapshots per route.
func (b *Bridge) Stats() map[string]any {
	return map[string]any{
		"total_requests": b.totalRequests.Load(),
		"total_faults":   b.totalFaults.Load(),
		"breakers":       b.policies.Snapshots(),
	}
}

func endpointURL(r *http.Request, soapPath string) string {
	if r.Host == "" {
		return soapPath
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + soapPath
}
