package scanner

import (
	"log/slog"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/pkg/config"
)

// BuildAdapters constructs the full adapter set. The orchestrator intersects
// this set with a project's resolved targets to decide what actually runs.
func BuildAdapters(cfg *config.ScannerConfig, structurer Structurer, logger *slog.Logger) (map[models.ScannerType]Adapter, error) {
	portScan, err := NewPortScanAdapter(logger, &PortScanConfig{Ports: cfg.Ports})
	if err != nil {
		return nil, err
	}

	adapters := []Adapter{
		NewWebAppAdapter(logger, &WebAppConfig{Timeout: cfg.ToolTimeout()}),
		portScan,
		NewDNSReconAdapter(logger),
		NewDependencyAdapter(logger),
		NewSecretsAdapter(logger),
		NewLanguageProfiler(logger),
		NewContractAdapter(logger, structurer),
		NewAzurePostureAdapter(logger),
		NewGooglePostureAdapter(logger),
	}

	byType := make(map[models.ScannerType]Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}
	return byType, nil
}
