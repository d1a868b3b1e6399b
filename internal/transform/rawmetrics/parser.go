// Package rawmetrics parses raw probe command output into metrics snapshots.
package rawmetrics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// Supported operating systems.
const (
	OSWindows = "windows"
	OSLinux   = "linux"
)

// Raw output keys produced by the collection probes.
const (
	KeyCPU          = "cpu"
	KeyMemory       = "memory"
	KeyProcesses    = "processes"
	KeyNetwork      = "network"
	KeyFailedLogins = "failed_logins"
)

var (
	ipRe       = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)
	linuxCPURe = regexp.MustCompile(`(\d+\.\d+)\s+id`)
)

// failureKeywords mark auth log lines that count toward per-IP failures.
var failureKeywords = []string{"failed", "failure", "invalid", "denied"}

// Parser turns the raw text output of OS probe commands into a
// MetricsSnapshot. Each metric parses independently; a malformed section
// degrades to zero instead of failing the snapshot.
type Parser struct {
	osType string
	now    func() time.Time
}

// NewParser returns a parser for the given OS type.
func NewParser(osType string) (*Parser, error) {
	osType = strings.ToLower(osType)
	if osType != OSWindows && osType != OSLinux {
		return nil, fmt.Errorf("%w: unsupported OS type %q", errpolicy.ErrInvalidArgument, osType)
	}
	return &Parser{osType: osType, now: time.Now}, nil
}

// Parse builds a snapshot for nodeID from raw probe output keyed by metric.
func (p *Parser) Parse(raw map[string]string, nodeID string) *models.MetricsSnapshot {
	if nodeID == "" {
		nodeID = models.DefaultNodeID
	}

	sourceIPs, destIPs := extractNetstatIPs(raw[KeyNetwork])

	return &models.MetricsSnapshot{
		CPUUsage:             p.parseCPU(raw[KeyCPU]),
		MemoryUsage:          p.parseMemory(raw[KeyMemory]),
		ProcessCount:         p.parseProcessCount(raw[KeyProcesses]),
		NetworkConnections:   parseConnectionCount(raw[KeyNetwork]),
		FailedLogins:         p.parseFailedLogins(raw[KeyFailedLogins]),
		Timestamp:            p.now().UTC().Format(time.RFC3339),
		NodeID:               nodeID,
		UniqueIPCount:        countUniqueIPs(sourceIPs, destIPs),
		FailedAttemptsPerIP:  extractFailedAttemptsPerIP(raw[KeyFailedLogins]),
		ConnectionCountPerIP: countConnectionsPerIP(sourceIPs, destIPs),
		SourceIPs:            sourceIPs,
		DestinationIPs:       destIPs,
	}
}

// Validate reports whether a snapshot is complete and within range.
func (p *Parser) Validate(snap *models.MetricsSnapshot) bool {
	if snap == nil {
		logger.Errorf("rawmetrics: validation failed: snapshot is nil")
		return false
	}
	if snap.Timestamp == "" {
		logger.Errorf("rawmetrics: validation failed: timestamp is empty")
		return false
	}
	if snap.CPUUsage < 0 || snap.CPUUsage > 100 {
		logger.Errorf("rawmetrics: validation failed: cpu_usage %v out of range", snap.CPUUsage)
		return false
	}
	if snap.MemoryUsage < 0 || snap.MemoryUsage > 100 {
		logger.Errorf("rawmetrics: validation failed: memory_usage %v out of range", snap.MemoryUsage)
		return false
	}
	if snap.ProcessCount < 0 || snap.NetworkConnections < 0 || snap.FailedLogins < 0 {
		logger.Errorf("rawmetrics: validation failed: negative count in snapshot")
		return false
	}
	return true
}

func (p *Parser) parseCPU(output string) float64 {
	if p.osType == OSWindows {
		return parseWindowsCPU(output)
	}
	return parseLinuxCPU(output)
}

// parseWindowsCPU reads the wmic loadpercentage table: a header line
// followed by the percentage.
func parseWindowsCPU(output string) float64 {
	lines := nonEmptyLines(output)
	if len(lines) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil {
		logger.Warnf("rawmetrics: failed to parse Windows CPU usage: %v", err)
		return 0
	}
	return clampPercent(v)
}

// parseLinuxCPU derives usage from the idle percentage in top's Cpu(s) line.
func parseLinuxCPU(output string) float64 {
	m := linuxCPURe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	idle, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		logger.Warnf("rawmetrics: failed to parse Linux CPU usage: %v", err)
		return 0
	}
	return clampPercent(100 - idle)
}

func (p *Parser) parseMemory(output string) float64 {
	if p.osType == OSWindows {
		return parseWindowsMemory(output)
	}
	return parseLinuxMemory(output)
}

// parseWindowsMemory reads wmic FreePhysicalMemory,TotalVisibleMemorySize.
func parseWindowsMemory(output string) float64 {
	lines := nonEmptyLines(output)
	if len(lines) < 2 {
		return 0
	}
	values := strings.Fields(lines[1])
	if len(values) < 2 {
		return 0
	}
	free, err1 := strconv.ParseFloat(values[0], 64)
	total, err2 := strconv.ParseFloat(values[1], 64)
	if err1 != nil || err2 != nil || total <= 0 {
		logger.Warnf("rawmetrics: failed to parse Windows memory usage")
		return 0
	}
	return clampPercent((total - free) / total * 100)
}

// parseLinuxMemory reads the Mem: row of free -m.
func parseLinuxMemory(output string) float64 {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		values := strings.Fields(line)
		if len(values) < 3 {
			return 0
		}
		total, err1 := strconv.ParseFloat(values[1], 64)
		used, err2 := strconv.ParseFloat(values[2], 64)
		if err1 != nil || err2 != nil || total <= 0 {
			logger.Warnf("rawmetrics: failed to parse Linux memory usage")
			return 0
		}
		return clampPercent(used / total * 100)
	}
	return 0
}

// parseProcessCount counts the non-header lines of tasklist or ps aux.
func (p *Parser) parseProcessCount(output string) int {
	lines := nonEmptyLines(output)
	if len(lines) == 0 {
		return 0
	}
	if p.osType == OSWindows {
		count := 0
		for _, line := range lines {
			if strings.HasPrefix(line, "Image Name") || strings.HasPrefix(line, "=") {
				continue
			}
			count++
		}
		return count
	}
	// ps aux carries a single header line.
	return len(lines) - 1
}

// parseConnectionCount counts netstat lines that mention an IPv4 address.
func parseConnectionCount(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if ipRe.MatchString(line) {
			count++
		}
	}
	return count
}

// parseFailedLogins counts failed authentication entries: event id 4625 on
// Windows, "Failed password" lines on Linux.
func (p *Parser) parseFailedLogins(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if p.osType == OSWindows {
			if strings.Contains(line, "Event ID: 4625") || strings.Contains(line, "EventID=4625") {
				count++
			}
		} else {
			if strings.Contains(line, "Failed password") || strings.Contains(line, "failed password") {
				count++
			}
		}
	}
	return count
}

// extractNetstatIPs pulls (local, foreign) address pairs out of netstat
// output. The first IP on a line is the source, the second the destination;
// lines with fewer than two IPs are skipped.
func extractNetstatIPs(output string) (sources, destinations []string) {
	for _, line := range strings.Split(output, "\n") {
		ips := ipRe.FindAllString(line, -1)
		if len(ips) >= 2 {
			sources = append(sources, ips[0])
			destinations = append(destinations, ips[1])
		}
	}
	return sources, destinations
}

func countUniqueIPs(sources, destinations []string) int {
	seen := map[string]struct{}{}
	for _, ip := range sources {
		seen[ip] = struct{}{}
	}
	for _, ip := range destinations {
		seen[ip] = struct{}{}
	}
	return len(seen)
}

func countConnectionsPerIP(sources, destinations []string) map[string]int {
	counts := map[string]int{}
	for _, ip := range sources {
		counts[ip]++
	}
	for _, ip := range destinations {
		counts[ip]++
	}
	return counts
}

// extractFailedAttemptsPerIP attributes auth failures to the IPs named on
// each failing log line.
func extractFailedAttemptsPerIP(output string) map[string]int {
	failed := map[string]int{}
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		match := false
		for _, keyword := range failureKeywords {
			if strings.Contains(lower, keyword) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		for _, ip := range ipRe.FindAllString(line, -1) {
			failed[ip]++
		}
	}
	return failed
}

func nonEmptyLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
