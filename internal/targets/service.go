package targets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/pkg/crypto"
	"gorm.io/gorm"
)

// ErrTargetNotFound is returned by DeleteTarget when the ID matches no
// target table.
var ErrTargetNotFound = errors.New("target not found")

// TargetSet is everything scannable a project resolves to. Absent entries
// simply mean the adapters keyed to that target type are skipped.
type TargetSet struct {
	Repository      *models.Repository
	Domains         []models.Domain
	ContractBundles []models.ContractBundle
	Azure           *resolvedCredential[models.AzureCredential]
	Google          *resolvedCredential[models.GoogleCredential]
}

type resolvedCredential[T any] struct {
	ID         uuid.UUID
	Credential T
}

func (r *resolvedCredential[T]) TargetID() uuid.UUID { return r.ID }

// Service resolves a project's targets (decrypting cloud credentials) and
// owns the cascade delete from a target to its dependent records.
type Service struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor, logger *slog.Logger) *Service {
	return &Service{db: db, encryptor: encryptor, logger: logger}
}

// ResolveTargets loads every scannable entity belonging to the project.
// Zero eligible targets is not an error; the scan simply has nothing to do.
func (s *Service) ResolveTargets(ctx context.Context, projectID uuid.UUID) (*TargetSet, error) {
	set := &TargetSet{}

	var repos []models.Repository
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Limit(1).Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("resolving repository: %w", err)
	}
	if len(repos) > 0 {
		set.Repository = &repos[0]
	}

	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&set.Domains).Error; err != nil {
		return nil, fmt.Errorf("resolving domains: %w", err)
	}

	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&set.ContractBundles).Error; err != nil {
		return nil, fmt.Errorf("resolving contract bundles: %w", err)
	}

	var creds []models.CloudCredential
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	for i := range creds {
		cred := &creds[i]
		plaintext, err := s.encryptor.Decrypt(cred.EncryptedData)
		if err != nil {
			s.logger.Error("failed to decrypt credential", "id", cred.ID, "provider", cred.Provider, "error", err)
			continue
		}

		switch cred.Provider {
		case models.ProviderAzure:
			var azure models.AzureCredential
			if err := json.Unmarshal(plaintext, &azure); err != nil {
				s.logger.Error("failed to parse azure credential", "id", cred.ID, "error", err)
				continue
			}
			set.Azure = &resolvedCredential[models.AzureCredential]{ID: cred.ID, Credential: azure}
		case models.ProviderGoogle:
			var google models.GoogleCredential
			if err := json.Unmarshal(plaintext, &google); err != nil {
				s.logger.Error("failed to parse google credential", "id", cred.ID, "error", err)
				continue
			}
			set.Google = &resolvedCredential[models.GoogleCredential]{ID: cred.ID, Credential: google}
		default:
			s.logger.Warn("unknown credential provider", "id", cred.ID, "provider", cred.Provider)
			continue
		}

		s.db.WithContext(ctx).Model(cred).Update("last_used", time.Now().Unix())
	}

	return set, nil
}

// CreateCredential encrypts and stores a cloud credential for a project.
func (s *Service) CreateCredential(ctx context.Context, projectID uuid.UUID, name string, provider models.CloudProvider, credData any) (*models.CloudCredential, error) {
	jsonData, err := json.Marshal(credData)
	if err != nil {
		return nil, fmt.Errorf("serializing credentials: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(jsonData)
	if err != nil {
		return nil, fmt.Errorf("encrypting credentials: %w", err)
	}

	cred := &models.CloudCredential{
		ProjectID:     projectID,
		Name:          name,
		Provider:      provider,
		EncryptedData: encrypted,
	}

	if err := s.db.WithContext(ctx).Create(cred).Error; err != nil {
		return nil, fmt.Errorf("saving credential: %w", err)
	}

	s.logger.Info("created credential", "id", cred.ID, "name", name, "provider", provider)
	return cred, nil
}
