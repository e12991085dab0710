package soap

import (
	"github.com/beevik/etree"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/errors"
)

// VerifyWsSecurity checks the WS-Security UsernameToken in the SOAP Header
// against the configured credentials. It is a no-op when the feature is
// disabled. Verification runs before any backend call is attempted.
func VerifyWsSecurity(doc *etree.Document, cfg *config.WsSecurityConfig) error {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if cfg.Username == "" || cfg.Password == "" {
		return errors.Configurationf("incomplete WS-Security configuration: username and password are required")
	}

	header := findByLocalName(doc.Root(), "Header")
	if header == nil {
		return errors.Protocolf("WS-Security: SOAP Header required")
	}

	usernameToken := findByLocalName(header, "UsernameToken")
	if usernameToken == nil {
		return errors.Protocolf("WS-Security: UsernameToken required")
	}

	username := findByLocalName(usernameToken, "Username")
	password := findByLocalName(usernameToken, "Password")
	if username == nil || password == nil {
		return errors.Protocolf("WS-Security: Username and Password required")
	}

	if textContent(username) != cfg.Username || textContent(password) != cfg.Password {
		return errors.Protocolf("WS-Security: invalid credentials")
	}
	return nil
}
