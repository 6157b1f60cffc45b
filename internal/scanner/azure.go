package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/subscription/armsubscription"
	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// AzurePostureAdapter checks an Azure subscription for common posture
// violations: storage accounts allowing public blob access or plain HTTP,
// and NSG rules open to the whole internet.
type AzurePostureAdapter struct {
	logger *slog.Logger
}

func NewAzurePostureAdapter(logger *slog.Logger) *AzurePostureAdapter {
	return &AzurePostureAdapter{logger: logger}
}

func (a *AzurePostureAdapter) Type() models.ScannerType {
	return models.ScannerAzure
}

func (a *AzurePostureAdapter) TargetType() models.TargetType {
	return models.TargetTypeAzure
}

type azurePosture struct {
	SubscriptionID  string   `json:"subscription_id"`
	StorageAccounts int      `json:"storage_accounts"`
	SecurityGroups  int      `json:"security_groups"`
	Violations      []string `json:"violations"`
}

func (a *AzurePostureAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	creds := target.Azure

	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.SubscriptionID,
			Err: fmt.Errorf("invalid Azure credentials: %w", err)}
	}

	// Validate by touching the subscriptions API before scanning anything.
	subClient, err := armsubscription.NewSubscriptionsClient(cred, nil)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.SubscriptionID, Err: err}
	}
	if _, err := subClient.Get(ctx, creds.SubscriptionID, nil); err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.SubscriptionID,
			Err: fmt.Errorf("validating subscription: %w", err)}
	}

	posture := azurePosture{SubscriptionID: creds.SubscriptionID}
	var findings []StructuredFinding

	storageFindings, accounts, err := a.checkStorage(ctx, cred, creds.SubscriptionID)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.SubscriptionID, Err: err}
	}
	posture.StorageAccounts = accounts
	findings = append(findings, storageFindings...)

	nsgFindings, groups, err := a.checkNetworkGroups(ctx, cred, creds.SubscriptionID)
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: creds.SubscriptionID, Err: err}
	}
	posture.SecurityGroups = groups
	findings = append(findings, nsgFindings...)

	for _, f := range findings {
		posture.Violations = append(posture.Violations, f.Name)
	}
	raw, _ := json.Marshal(posture)

	a.logger.Info("azure posture scan finished",
		"scan_id", scanID,
		"subscription", creds.SubscriptionID,
		"findings", len(findings),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}

func (a *AzurePostureAdapter) checkStorage(ctx context.Context, cred *azidentity.ClientSecretCredential, subscriptionID string) ([]StructuredFinding, int, error) {
	client, err := armstorage.NewAccountsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating storage client: %w", err)
	}

	var findings []StructuredFinding
	count := 0

	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, count, fmt.Errorf("listing storage accounts: %w", err)
		}

		for _, account := range page.Value {
			count++
			name := ptrValue(account.Name)
			resourceID := ptrValue(account.ID)
			region := ptrValue(account.Location)

			if account.Properties == nil {
				continue
			}

			if account.Properties.AllowBlobPublicAccess != nil && *account.Properties.AllowBlobPublicAccess {
				findings = append(findings, StructuredFinding{
					Name:        fmt.Sprintf("Storage account %s allows public blob access", name),
					Description: fmt.Sprintf("Storage account %s permits anonymous blob reads.", name),
					Severity:    models.SeverityHigh,
					TargetType:  models.TargetTypeAzure,
					DetailKind:  models.DetailKindCloud,
					Detail: models.CloudDetail{
						Provider:   string(models.ProviderAzure),
						ResourceID: resourceID,
						Rule:       "storage_public_blob_access",
						Region:     region,
					},
					FixSuggestion: "Set allowBlobPublicAccess to false on the storage account.",
				})
			}

			if account.Properties.EnableHTTPSTrafficOnly != nil && !*account.Properties.EnableHTTPSTrafficOnly {
				findings = append(findings, StructuredFinding{
					Name:        fmt.Sprintf("Storage account %s accepts plain HTTP", name),
					Description: fmt.Sprintf("Storage account %s does not enforce HTTPS-only traffic.", name),
					Severity:    models.SeverityMedium,
					TargetType:  models.TargetTypeAzure,
					DetailKind:  models.DetailKindCloud,
					Detail: models.CloudDetail{
						Provider:   string(models.ProviderAzure),
						ResourceID: resourceID,
						Rule:       "storage_https_only_disabled",
						Region:     region,
					},
					FixSuggestion: "Enable supportsHttpsTrafficOnly on the storage account.",
				})
			}
		}
	}

	return findings, count, nil
}

func (a *AzurePostureAdapter) checkNetworkGroups(ctx context.Context, cred *azidentity.ClientSecretCredential, subscriptionID string) ([]StructuredFinding, int, error) {
	client, err := armnetwork.NewSecurityGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating network client: %w", err)
	}

	var findings []StructuredFinding
	count := 0

	pager := client.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, count, fmt.Errorf("listing security groups: %w", err)
		}

		for _, nsg := range page.Value {
			count++
			if nsg.Properties == nil {
				continue
			}

			for _, rule := range nsg.Properties.SecurityRules {
				p := rule.Properties
				if p == nil || p.Access == nil || p.Direction == nil {
					continue
				}
				if *p.Access != armnetwork.SecurityRuleAccessAllow ||
					*p.Direction != armnetwork.SecurityRuleDirectionInbound {
					continue
				}
				src := ptrValue(p.SourceAddressPrefix)
				if src != "*" && src != "0.0.0.0/0" && src != "Internet" {
					continue
				}

				findings = append(findings, StructuredFinding{
					Name: fmt.Sprintf("NSG %s rule %s open to the internet",
						ptrValue(nsg.Name), ptrValue(rule.Name)),
					Description: fmt.Sprintf("Inbound rule %s in %s allows traffic from any source to ports %s.",
						ptrValue(rule.Name), ptrValue(nsg.Name), ptrValue(p.DestinationPortRange)),
					Severity:   models.SeverityHigh,
					TargetType: models.TargetTypeAzure,
					DetailKind: models.DetailKindCloud,
					Detail: models.CloudDetail{
						Provider:   string(models.ProviderAzure),
						ResourceID: ptrValue(nsg.ID),
						Rule:       "nsg_inbound_any_source",
						Region:     ptrValue(nsg.Location),
					},
					FixSuggestion: "Restrict the rule's source address prefix to known networks.",
				})
			}
		}
	}

	return findings, count, nil
}

func ptrValue[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
