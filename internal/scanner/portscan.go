package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmorgan8/scanforge/internal/database/models"
)

// Common port to service mappings
var commonServices = map[int]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	143:   "imap",
	443:   "https",
	445:   "microsoft-ds",
	1433:  "mssql",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	5900:  "vnc",
	6379:  "redis",
	8080:  "http-proxy",
	8443:  "https-alt",
	9200:  "elasticsearch",
	27017: "mongodb",
}

// Ports whose exposure to the internet is itself a finding worth raising
// above informational.
var riskyServices = map[int]models.Severity{
	21:    models.SeverityMedium,
	23:    models.SeverityHigh,
	445:   models.SeverityHigh,
	1433:  models.SeverityHigh,
	3306:  models.SeverityHigh,
	3389:  models.SeverityHigh,
	5432:  models.SeverityHigh,
	5900:  models.SeverityHigh,
	6379:  models.SeverityCritical,
	9200:  models.SeverityCritical,
	27017: models.SeverityCritical,
}

// PortScanAdapter performs a TCP connect scan against a domain target.
type PortScanAdapter struct {
	logger      *slog.Logger
	ports       []int
	timeout     time.Duration
	concurrency int
}

// PortScanConfig configures the port scan adapter.
type PortScanConfig struct {
	Ports       string // "80,443" or "1-1024"; empty means common ports
	Timeout     time.Duration
	Concurrency int
}

func NewPortScanAdapter(logger *slog.Logger, cfg *PortScanConfig) (*PortScanAdapter, error) {
	timeout := 3 * time.Second
	concurrency := 100
	spec := ""

	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		spec = cfg.Ports
	}

	ports, err := ParsePorts(spec)
	if err != nil {
		return nil, err
	}

	return &PortScanAdapter{
		logger:      logger,
		ports:       ports,
		timeout:     timeout,
		concurrency: concurrency,
	}, nil
}

func (a *PortScanAdapter) Type() models.ScannerType {
	return models.ScannerPortScan
}

func (a *PortScanAdapter) TargetType() models.TargetType {
	return models.TargetTypeDomain
}

// ParsePorts parses a port specification string into a list of ports.
// Supports "80", "80,443,8080", "1-1000" and combinations.
func ParsePorts(spec string) ([]int, error) {
	if spec == "" {
		ports := make([]int, 0, len(commonServices))
		for p := range commonServices {
			ports = append(ports, p)
		}
		return ports, nil
	}

	var ports []int
	seen := make(map[int]bool)

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid port range: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid port number: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid port number: %s", rangeParts[1])
			}
			if start > end || start < 1 || end > 65535 {
				return nil, fmt.Errorf("invalid port range: %d-%d", start, end)
			}

			for p := start; p <= end; p++ {
				if !seen[p] {
					ports = append(ports, p)
					seen[p] = true
				}
			}
			continue
		}

		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", part)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("port out of range: %d", port)
		}
		if !seen[port] {
			ports = append(ports, port)
			seen[port] = true
		}
	}

	return ports, nil
}

type portResult struct {
	Port    int    `json:"port"`
	Service string `json:"service,omitempty"`
	Banner  string `json:"banner,omitempty"`
}

func (a *PortScanAdapter) Execute(ctx context.Context, scanID uuid.UUID, target Target) (*Result, error) {
	host := target.Domain.Hostname

	var open []portResult
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Semaphore for concurrency control
	sem := make(chan struct{}, a.concurrency)

	for _, port := range a.ports {
		select {
		case <-ctx.Done():
			return nil, &AdapterError{Scanner: a.Type(), Target: host, Err: ctx.Err()}
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			defer func() { <-sem }()

			banner, ok := a.probePort(ctx, host, p)
			if !ok {
				return
			}
			mu.Lock()
			open = append(open, portResult{Port: p, Service: commonServices[p], Banner: banner})
			mu.Unlock()
		}(port)
	}

	wg.Wait()

	var findings []StructuredFinding
	for _, r := range open {
		severity, risky := riskyServices[r.Port]
		if !risky {
			severity = models.SeverityInfo
		}

		name := fmt.Sprintf("Open port %d/tcp", r.Port)
		if r.Service != "" {
			name = fmt.Sprintf("Open port %d/tcp (%s)", r.Port, r.Service)
		}

		findings = append(findings, StructuredFinding{
			Name:        name,
			Description: fmt.Sprintf("%s accepts TCP connections on port %d.", host, r.Port),
			Severity:    severity,
			TargetType:  models.TargetTypeDomain,
			DetailKind:  models.DetailKindNetwork,
			Detail: models.NetworkDetail{
				Port:     r.Port,
				Protocol: "tcp",
				Service:  r.Service,
				Banner:   r.Banner,
			},
		})
	}

	raw, _ := json.Marshal(open)

	a.logger.Info("port scan finished",
		"scan_id", scanID,
		"host", host,
		"scanned", len(a.ports),
		"open", len(open),
	)

	return &Result{Raw: string(raw), Findings: findings}, nil
}

// probePort attempts a TCP connect and grabs whatever banner arrives in
// the first second.
func (a *PortScanAdapter) probePort(ctx context.Context, host string, port int) (string, bool) {
	dialer := net.Dialer{Timeout: a.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return "", false
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, _ := conn.Read(buf)
	banner := strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), ""))

	return banner, true
}
