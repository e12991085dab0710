package bridge

import (
	"context"
	"regexp"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/errors"
	"github.com/softslim/soapbridge/internal/invoker"
	"github.com/softslim/soapbridge/internal/resilience"
	"github.com/softslim/soapbridge/internal/soap"
	"github.com/softslim/soapbridge/internal/token"
)

var headerPlaceholder = regexp.MustCompile(`\$\{header\.([^}]+)\}`)

// pipeline is the compiled execution plan for one (service, operation) pair.
// It is built once at startup and shared by all requests for that operation.
type pipeline struct {
	serviceName string
	routeKey    string
	mapping     config.OperationMapping
	domainPath  string
	security    config.SecurityConfig
	resilience  *config.ResilienceConfig

	invoker *invoker.Invoker
	tlsErr  error // mutual-TLS identity build failure, surfaced per request

	tokens   *token.Manager
	policies *resilience.Cache
}

// execute resolves the target invocation from the parsed SOAP request and
// runs it under the route's resilience policy.
func (p *pipeline) execute(ctx context.Context, req *soap.Request) (*invoker.Response, error) {
	if p.tlsErr != nil {
		return nil, p.tlsErr
	}
	if strings.TrimSpace(p.domainPath) == "" {
		return nil, errors.Configurationf("domain_path not configured for operation %s", p.mapping.Operation)
	}

	resolvedPath, err := resolvePath(p.mapping.Path, req.Parameters)
	if err != nil {
		return nil, err
	}
	targetURL := buildTargetURL(p.domainPath, resolvedPath)

	method := strings.ToUpper(p.mapping.Method)
	if method == "" {
		method = "GET"
	}

	headers := make(map[string]string, len(p.mapping.Headers)+1)
	for name, value := range p.mapping.Headers {
		headers[name] = value
	}
	// The bearer token is applied after the static headers; on a name
	// collision the security header is the one that reaches the backend.
	if err := p.applyOAuth2(ctx, headers); err != nil {
		return nil, err
	}

	var body []byte
	if hasBody(method) {
		body, err = jsonBody(req.Parameters)
		if err != nil {
			return nil, err
		}
	}

	policy := p.policies.Resolve(p.routeKey, p.resilience)

	var resp *invoker.Response
	err = policy.Execute(ctx, func() error {
		r, callErr := p.invoker.Invoke(ctx, method, targetURL, headers, body)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *pipeline) applyOAuth2(ctx context.Context, headers map[string]string) error {
	oauth := p.security.OAuth2
	if oauth == nil || !oauth.Enabled {
		return nil
	}
	if oauth.TokenURI == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		return errors.Configurationf("incomplete OAuth2 configuration for service %s", p.serviceName)
	}
	accessToken, err := p.tokens.AccessToken(ctx, oauth.TokenURI, oauth.ClientID, oauth.ClientSecret, oauth.Scope)
	if err != nil {
		return err
	}
	headers["Authorization"] = "Bearer " + accessToken
	return nil
}

// resolvePath substitutes every ${header.NAME} token with the matching SOAP
// parameter. A referenced name with no parameter aborts the invocation
// before any network call.
func resolvePath(path string, params map[string]string) (string, error) {
	if path == "" {
		return "", nil
	}
	var missing string
	resolved := headerPlaceholder.ReplaceAllStringFunc(path, func(match string) string {
		name := headerPlaceholder.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return value
	})
	if missing != "" {
		return "", errors.Configurationf("required header not found for REST path: %s", missing)
	}
	return resolved, nil
}

func buildTargetURL(domainPath, path string) string {
	base := strings.TrimSuffix(domainPath, "/")
	if path == "" {
		return base + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func hasBody(method string) bool {
	return method == "POST" || method == "PUT" || method == "PATCH"
}

// jsonBody serializes the SOAP parameters as one flat JSON object.
func jsonBody(params map[string]string) ([]byte, error) {
	body := "{}"
	for name, value := range params {
		var err error
		body, err = sjson.Set(body, escapeJSONPath(name), value)
		if err != nil {
			return nil, errors.Configurationf("failed to serialize parameter %q", name).Wrap(err)
		}
	}
	return []byte(body), nil
}

// escapeJSONPath keeps parameter names literal: sjson path syntax treats
// dots and wildcards as structure, which flat SOAP parameters never are.
func escapeJSONPath(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
