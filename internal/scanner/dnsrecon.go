package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// DNSReconAdapter inspects a domain's DNS posture: missing SPF/DMARC
// records, dangling CNAMEs and wildcard resolution.
type DNSReconAdapter struct {
	logger   *slog.Logger
	resolver *net.Resolver
}

func NewDNSReconAdapter(logger *slog.Logger) *DNSReconAdapter {
	return &DNSReconAdapter{
		logger:   logger,
		resolver: net.DefaultResolver,
	}
}

func (a *DNSReconAdapter) Type() models.ScannerType {
	return models.ScannerDNSRecon
}

func (a *DNSReconAdapter) TargetType() models.TargetType {
	return models.TargetTypeDomain
}

type dnsRecon struct {
	Hostname  string   `json:"hostname"`
	Addresses []string `json:"addresses,omitempty"`
	CNAME     string   `json:"cname,omitempty"`
	SPF       string   `json:"spf,omitempty"`
	DMARC     string   `json:"dmarc,omitempty"`
	Wildcard  bool     `json:"wildcard"`
}

func (a *DNSReconAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	host := target.Domain.Hostname
	recon := dnsRecon{Hostname: host}
	var findings []StructuredFinding

	addrs, err := a.resolver.LookupHost(ctx, host)
	if err != nil {
		var dnsErr *net.DNSError
		// NXDOMAIN on the apex is worth knowing about; resolver outages are not.
		if !asDNSNotFound(err, &dnsErr) {
			return nil, &AdapterError{Scanner: a.Type(), Target: host, Err: err}
		}
	}
	recon.Addresses = addrs

	// Dangling CNAME: the name aliases somewhere that does not resolve.
	if cname, err := a.resolver.LookupCNAME(ctx, host); err == nil && cname != "" {
		trimmed := strings.TrimSuffix(cname, ".")
		if trimmed != host {
			recon.CNAME = trimmed
			if _, err := a.resolver.LookupHost(ctx, trimmed); err != nil {
				var dnsErr *net.DNSError
				if asDNSNotFound(err, &dnsErr) {
					findings = append(findings, StructuredFinding{
						Name:        fmt.Sprintf("Dangling CNAME %s", host),
						Description: fmt.Sprintf("%s aliases %s, which does not resolve. The alias target may be claimable (subdomain takeover).", host, trimmed),
						Severity:    models.SeverityHigh,
						TargetType:  models.TargetTypeDomain,
						DetailKind:  models.DetailKindWeb,
						Detail: models.WebDetail{
							URL:      host,
							Evidence: trimmed,
						},
						FixSuggestion: "Remove the CNAME record or re-provision the alias target.",
					})
				}
			}
		}
	}

	// SPF lives in apex TXT records, DMARC under _dmarc.
	if txts, err := a.resolver.LookupTXT(ctx, host); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(txt, "v=spf1") {
				recon.SPF = txt
				break
			}
		}
	}
	if recon.SPF == "" {
		findings = append(findings, StructuredFinding{
			Name:        "Missing SPF record",
			Description: fmt.Sprintf("%s publishes no SPF policy; mail from the domain can be spoofed.", host),
			Severity:    models.SeverityMedium,
			TargetType:  models.TargetTypeDomain,
			DetailKind:  models.DetailKindWeb,
			Detail:      models.WebDetail{URL: host, Evidence: "no v=spf1 TXT record"},
			FixSuggestion: "Publish an SPF TXT record for the domain.",
		})
	}

	if txts, err := a.resolver.LookupTXT(ctx, "_dmarc."+host); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(txt, "v=DMARC1") {
				recon.DMARC = txt
				break
			}
		}
	}
	if recon.DMARC == "" {
		findings = append(findings, StructuredFinding{
			Name:        "Missing DMARC record",
			Description: fmt.Sprintf("%s publishes no DMARC policy; spoofed mail is not rejected.", host),
			Severity:    models.SeverityMedium,
			TargetType:  models.TargetTypeDomain,
			DetailKind:  models.DetailKindWeb,
			Detail:      models.WebDetail{URL: host, Evidence: "no _dmarc TXT record"},
			FixSuggestion: "Publish a DMARC TXT record with at least p=quarantine.",
		})
	}

	// Wildcard detection: a label that should not exist resolving means any
	// subdomain resolves, which masks takeover checks downstream.
	probe := "scanforge-wildcard-probe." + host
	if _, err := a.resolver.LookupHost(ctx, probe); err == nil {
		recon.Wildcard = true
		findings = append(findings, StructuredFinding{
			Name:        "Wildcard DNS resolution",
			Description: fmt.Sprintf("Arbitrary subdomains of %s resolve.", host),
			Severity:    models.SeverityLow,
			TargetType:  models.TargetTypeDomain,
			DetailKind:  models.DetailKindWeb,
			Detail:      models.WebDetail{URL: host, Evidence: probe},
		})
	}

	raw, _ := json.Marshal(recon)

	a.logger.Info("dns recon finished",
		"scan_id", scanID,
		"host", host,
		"findings", len(findings),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}

func asDNSNotFound(err error, dnsErr **net.DNSError) bool {
	if e, ok := err.(*net.DNSError); ok {
		*dnsErr = e
		return e.IsNotFound
	}
	return false
}
