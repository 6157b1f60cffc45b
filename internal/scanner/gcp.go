package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"golang.org/x/oauth2/google"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GooglePostureAdapter checks a GCP project for common posture violations:
// buckets granted to allUsers and firewall rules open to the whole internet.
type GooglePostureAdapter struct {
	logger *slog.Logger
}

func NewGooglePostureAdapter(logger *slog.Logger) *GooglePostureAdapter {
	return &GooglePostureAdapter{logger: logger}
}

func (a *GooglePostureAdapter) Type() models.ScannerType {
	return models.ScannerGoogle
}

func (a *GooglePostureAdapter) TargetType() models.TargetType {
	return models.TargetTypeGoogle
}

type gcpPosture struct {
	ProjectID  string   `json:"project_id"`
	Buckets    int      `json:"buckets"`
	Firewalls  int      `json:"firewalls"`
	Violations []string `json:"violations"`
}

func (a *GooglePostureAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	creds := target.Google
	saJSON := []byte(creds.ServiceAccountJSON)

	// Parse the service account key up front so a malformed credential is a
	// clean validation failure rather than an opaque API error.
	if _, err := google.JWTConfigFromJSON(saJSON, storage.CloudPlatformScope); err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.ProjectID,
			Err: fmt.Errorf("invalid service account key: %w", err)}
	}

	opts := []option.ClientOption{option.WithCredentialsJSON(saJSON)}
	posture := gcpPosture{ProjectID: creds.ProjectID}
	var findings []StructuredFinding

	bucketFindings, buckets, err := a.checkBuckets(ctx, creds.ProjectID, opts)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.ProjectID, Err: err}
	}
	posture.Buckets = buckets
	findings = append(findings, bucketFindings...)

	fwFindings, firewalls, err := a.checkFirewalls(ctx, creds.ProjectID, opts)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.ProjectID, Err: err}
	}
	posture.Firewalls = firewalls
	findings = append(findings, fwFindings...)

	for _, f := range findings {
		posture.Violations = append(posture.Violations, f.Name)
	}
	raw, _ := json.Marshal(posture)

	a.logger.Info("gcp posture scan finished",
		"scan_id", scanID,
		"project", creds.ProjectID,
		"findings", len(findings),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}

func (a *GooglePostureAdapter) checkBuckets(ctx context.Context, projectID string, opts []option.ClientOption) ([]StructuredFinding, int, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, 0, fmt.Errorf("creating storage service: %w", err)
	}

	buckets, err := svc.Buckets.List(projectID).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("listing buckets: %w", err)
	}

	var findings []StructuredFinding
	for _, bucket := range buckets.Items {
		policy, err := svc.Buckets.GetIamPolicy(bucket.Name).Context(ctx).Do()
		if err != nil {
			a.logger.Warn("could not read bucket IAM policy", "bucket", bucket.Name, "error", err)
			continue
		}

		public := false
		for _, binding := range policy.Bindings {
			for _, member := range binding.Members {
				if member == "allUsers" || member == "allAuthenticatedUsers" {
					public = true
				}
			}
		}
		if !public {
			continue
		}

		findings = append(findings, StructuredFinding{
			Name:        fmt.Sprintf("Bucket %s is publicly accessible", bucket.Name),
			Description: fmt.Sprintf("Bucket %s grants access to allUsers or allAuthenticatedUsers.", bucket.Name),
			Severity:    models.SeverityCritical,
			TargetType:  models.TargetTypeGoogle,
			DetailKind:  models.DetailKindCloud,
			Detail: models.CloudDetail{
				Provider:   string(models.ProviderGoogle),
				ResourceID: bucket.Name,
				Rule:       "bucket_public_iam",
				Region:     bucket.Location,
			},
			FixSuggestion: "Remove allUsers and allAuthenticatedUsers bindings from the bucket IAM policy.",
		})
	}

	return findings, len(buckets.Items), nil
}

func (a *GooglePostureAdapter) checkFirewalls(ctx context.Context, projectID string, opts []option.ClientOption) ([]StructuredFinding, int, error) {
	svc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, 0, fmt.Errorf("creating compute service: %w", err)
	}

	firewalls, err := svc.Firewalls.List(projectID).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("listing firewalls: %w", err)
	}

	var findings []StructuredFinding
	for _, fw := range firewalls.Items {
		if fw.Disabled || fw.Direction != "INGRESS" || len(fw.Allowed) == 0 {
			continue
		}

		open := false
		for _, src := range fw.SourceRanges {
			if src == "0.0.0.0/0" {
				open = true
			}
		}
		if !open {
			continue
		}

		findings = append(findings, StructuredFinding{
			Name:        fmt.Sprintf("Firewall rule %s open to the internet", fw.Name),
			Description: fmt.Sprintf("Ingress rule %s allows traffic from 0.0.0.0/0.", fw.Name),
			Severity:    models.SeverityHigh,
			TargetType:  models.TargetTypeGoogle,
			DetailKind:  models.DetailKindCloud,
			Detail: models.CloudDetail{
				Provider:   string(models.ProviderGoogle),
				ResourceID: fw.Name,
				Rule:       "firewall_ingress_any_source",
			},
			FixSuggestion: "Restrict the rule's source ranges to known networks.",
		})
	}

	return findings, len(firewalls.Items), nil
}
