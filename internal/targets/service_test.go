package targets_test

import (
	"context"
	"testing"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTargets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newService(t, db)
	ctx := context.Background()

	project := testutil.CreateTestProject(t, db)

	t.Run("empty project resolves to an empty set", func(t *testing.T) {
		set, err := svc.ResolveTargets(ctx, project.ID)
		require.NoError(t, err)
		assert.Nil(t, set.Repository)
		assert.Empty(t, set.Domains)
		assert.Empty(t, set.ContractBundles)
		assert.Nil(t, set.Azure)
		assert.Nil(t, set.Google)
	})

	t.Run("resolves every target type", func(t *testing.T) {
		repo := testutil.CreateTestRepository(t, db, project)
		testutil.CreateTestDomain(t, db, project, "a.example.com")
		testutil.CreateTestDomain(t, db, project, "b.example.com")

		bundle := &models.ContractBundle{ProjectID: project.ID, Name: "vault", SourcePath: "contracts/"}
		require.NoError(t, db.Create(bundle).Error)

		_, err := svc.CreateCredential(ctx, project.ID, "azure prod", models.ProviderAzure, models.AzureCredential{
			TenantID:       "tenant",
			ClientID:       "client",
			ClientSecret:   "secret",
			SubscriptionID: "sub",
		})
		require.NoError(t, err)

		set, err := svc.ResolveTargets(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, set.Repository)
		assert.Equal(t, repo.ID, set.Repository.ID)
		assert.Len(t, set.Domains, 2)
		assert.Len(t, set.ContractBundles, 1)
		require.NotNil(t, set.Azure)
		assert.Equal(t, "sub", set.Azure.Credential.SubscriptionID)
		assert.Nil(t, set.Google)
	})

	t.Run("undecryptable credential is skipped not fatal", func(t *testing.T) {
		bad := &models.CloudCredential{
			ProjectID:     project.ID,
			Name:          "corrupt",
			Provider:      models.ProviderGoogle,
			EncryptedData: []byte("not age ciphertext"),
		}
		require.NoError(t, db.Create(bad).Error)

		set, err := svc.ResolveTargets(ctx, project.ID)
		require.NoError(t, err)
		assert.Nil(t, set.Google)
		assert.NotNil(t, set.Azure, "good credentials still resolve")
	})
}

func TestCreateCredential_RoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newService(t, db)
	ctx := context.Background()

	project := testutil.CreateTestProject(t, db)

	cred, err := svc.CreateCredential(ctx, project.ID, "gcp dev", models.ProviderGoogle, models.GoogleCredential{
		ProjectID:          "my-project",
		ServiceAccountJSON: `{"type":"service_account"}`,
	})
	require.NoError(t, err)
	assert.NotEqual(t, `{"type":"service_account"}`, string(cred.EncryptedData), "stored data must be encrypted")

	set, err := svc.ResolveTargets(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, set.Google)
	assert.Equal(t, "my-project", set.Google.Credential.ProjectID)
}
