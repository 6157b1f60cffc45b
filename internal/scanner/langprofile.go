package scanner

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// Extension to language mapping for the profiler. Unlisted extensions are
// ignored rather than bucketed as "other".
var languageByExt = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".kt":    "Kotlin",
	".rb":    "Ruby",
	".php":   "PHP",
	".rs":    "Rust",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".cc":    "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".swift": "Swift",
	".scala": "Scala",
	".sol":   "Solidity",
	".sh":    "Shell",
	".tf":    "HCL",
	".yaml":  "YAML",
	".yml":   "YAML",
	".sql":   "SQL",
	".html":  "HTML",
	".css":   "CSS",
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// LanguageProfiler walks a repository checkout and emits one finding per
// detected language with its byte share. Profile findings are snapshots:
// the deduplicator replaces the previous run's rows instead of reopening them.
type LanguageProfiler struct {
	logger *slog.Logger
}

func NewLanguageProfiler(logger *slog.Logger) *LanguageProfiler {
	return &LanguageProfiler{logger: logger}
}

func (a *LanguageProfiler) Type() models.ScannerType {
	return models.ScannerLanguage
}

func (a *LanguageProfiler) TargetType() models.TargetType {
	return models.TargetTypeRepository
}

func (a *LanguageProfiler) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	bytesByLang := make(map[string]int64)
	var total int64

	err := filepath.WalkDir(target.ClonePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		bytesByLang[lang] += info.Size()
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, &AdapterError{Scanner: a.Type(), Target: target.ClonePath, Err: err}
	}

	findings := make([]StructuredFinding, 0, len(bytesByLang))
	for lang, n := range bytesByLang {
		percent := 0.0
		if total > 0 {
			percent = float64(n) / float64(total) * 100
		}
		findings = append(findings, StructuredFinding{
			Name:       lang,
			Severity:   models.SeverityInfo,
			TargetType: models.TargetTypeRepository,
			DetailKind: models.DetailKindLanguage,
			Detail: models.LanguageDetail{
				Language: lang,
				Bytes:    n,
				Percent:  percent,
			},
		})
	}

	raw, _ := json.Marshal(bytesByLang)

	a.logger.Info("language profile finished",
		"scan_id", scanID,
		"target", target.ClonePath,
		"languages", len(findings),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}
