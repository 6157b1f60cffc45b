package scanner

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// WebAppAdapter probes a domain over HTTPS and reports missing security
// headers, weak TLS configuration and certificate problems.
type WebAppAdapter struct {
	logger *slog.Logger
	client *http.Client
}

// WebAppConfig configures the web-app adapter behavior.
type WebAppConfig struct {
	Timeout time.Duration
}

func NewWebAppAdapter(logger *slog.Logger, cfg *WebAppConfig) *WebAppAdapter {
	timeout := 10 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // probing invalid certs is the point
		},
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		DisableCompression: true,
	}

	return &WebAppAdapter{
		logger: logger,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

func (a *WebAppAdapter) Type() models.ScannerType {
	return models.ScannerWebApp
}

func (a *WebAppAdapter) TargetType() models.TargetType {
	return models.TargetTypeDomain
}

// securityHeaders maps required response headers to the severity of their
// absence.
var securityHeaders = []struct {
	Header   string
	Severity models.Severity
	Why      string
}{
	{"Strict-Transport-Security", models.SeverityMedium, "responses can be downgraded to plain HTTP"},
	{"Content-Security-Policy", models.SeverityMedium, "no mitigation against injected script execution"},
	{"X-Content-Type-Options", models.SeverityLow, "responses are subject to MIME sniffing"},
	{"X-Frame-Options", models.SeverityLow, "pages can be framed for clickjacking"},
}

type webProbe struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	Server     string            `json:"server,omitempty"`
	Headers    map[string]string `json:"headers"`
	TLSVersion string            `json:"tls_version,omitempty"`
	CertExpiry string            `json:"cert_expiry,omitempty"`
}

func (a *WebAppAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	url := "https://" + target.Domain.Hostname

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: url, Err: err}
	}
	req.Header.Set("User-Agent", "scanforge/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: url, Err: fmt.Errorf("probe failed: %w", err)}
	}
	defer resp.Body.Close()

	probe := webProbe{
		URL:        url,
		StatusCode: resp.StatusCode,
		Server:     resp.Header.Get("Server"),
		Headers:    map[string]string{},
	}
	for _, h := range securityHeaders {
		probe.Headers[h.Header] = resp.Header.Get(h.Header)
	}

	var findings []StructuredFinding
	for _, h := range securityHeaders {
		if resp.Header.Get(h.Header) != "" {
			continue
		}
		findings = append(findings, StructuredFinding{
			Name:        fmt.Sprintf("Missing %s header", h.Header),
			Description: fmt.Sprintf("%s does not send %s: %s.", url, h.Header, h.Why),
			Severity:    h.Severity,
			TargetType:  models.TargetTypeDomain,
			DetailKind:  models.DetailKindWeb,
			Detail: models.WebDetail{
				URL:    url,
				Header: h.Header,
			},
			FixSuggestion: fmt.Sprintf("Configure the web server to send the %s header.", h.Header),
		})
	}

	if state := resp.TLS; state != nil {
		probe.TLSVersion = tlsVersionString(state.Version)

		if state.Version < tls.VersionTLS12 {
			findings = append(findings, StructuredFinding{
				Name:        "Weak TLS protocol version",
				Description: fmt.Sprintf("%s negotiated %s.", url, probe.TLSVersion),
				Severity:    models.SeverityHigh,
				TargetType:  models.TargetTypeDomain,
				DetailKind:  models.DetailKindWeb,
				Detail: models.WebDetail{
					URL:      url,
					Evidence: probe.TLSVersion,
				},
				FixSuggestion: "Disable TLS versions below 1.2.",
			})
		}

		if len(state.PeerCertificates) > 0 {
			cert := state.PeerCertificates[0]
			probe.CertExpiry = cert.NotAfter.UTC().Format(time.RFC3339)

			if time.Now().After(cert.NotAfter) {
				findings = append(findings, StructuredFinding{
					Name:        "Expired TLS certificate",
					Description: fmt.Sprintf("Certificate for %s expired %s.", url, probe.CertExpiry),
					Severity:    models.SeverityHigh,
					TargetType:  models.TargetTypeDomain,
					DetailKind:  models.DetailKindWeb,
					Detail: models.WebDetail{
						URL:      url,
						Evidence: probe.CertExpiry,
					},
					FixSuggestion: "Renew the TLS certificate.",
				})
			} else if days := int(time.Until(cert.NotAfter).Hours() / 24); days <= 14 {
				findings = append(findings, StructuredFinding{
					Name:        "TLS certificate expiring soon",
					Description: fmt.Sprintf("Certificate for %s expires in %d days.", url, days),
					Severity:    models.SeverityMedium,
					TargetType:  models.TargetTypeDomain,
					DetailKind:  models.DetailKindWeb,
					Detail: models.WebDetail{
						URL:      url,
						Evidence: probe.CertExpiry,
					},
					FixSuggestion: "Renew the TLS certificate before expiry.",
				})
			}
		}
	}

	raw, _ := json.Marshal(probe)

	a.logger.Info("web probe finished",
		"scan_id", scanID,
		"url", url,
		"status", resp.StatusCode,
		"findings", len(findings),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", version)
	}
}
