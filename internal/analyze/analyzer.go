package analyze

import (
	"log/slog"
	"strings"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

const (
	FindingSQLInjection    = "sql_injection"
	FindingScriptInjection = "script_injection"
	FindingPathTraversal   = "path_traversal"
	FindingOversizedBody   = "oversized_body"
	FindingRateExceeded    = "rate_exceeded"
)

var sqlPatterns = []string{
	"union select",
	"or 1=1",
	"' or '",
	"; drop table",
	"sleep(",
	"benchmark(",
}

var scriptPatterns = []string{
	"<script",
	"javascript:",
	"onerror=",
	"onload=",
}

// Analyzer inspects client request descriptors before/after a network call.
// It owns its own window counter store, so rate-limit keys never collide
// with the rule engine's threshold keys.
type Analyzer struct {
	cfg      *config.Manager
	counters *window.Store
	logger   *slog.Logger
}

func New(cfg *config.Manager, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		counters: window.NewStore(),
		logger:   logger,
	}
}

// Analyze returns the findings for one request; an empty slice means clean.
func (a *Analyzer) Analyze(req model.RequestDescriptor) []string {
	cfg := a.cfg.Get().Analyze
	var findings []string

	haystack := strings.ToLower(req.URL + " " + req.Body)
	if matchesAny(haystack, sqlPatterns) {
		findings = append(findings, FindingSQLInjection)
	}
	if matchesAny(haystack, scriptPatterns) {
		findings = append(findings, FindingScriptInjection)
	}
	if strings.Contains(haystack, "../") || strings.Contains(haystack, "..\\") {
		findings = append(findings, FindingPathTraversal)
	}
	if cfg.MaxBodyBytes > 0 && len(req.Body) > cfg.MaxBodyBytes {
		findings = append(findings, FindingOversizedBody)
	}
	if req.IP != "" {
		count := a.counters.Observe(rateKey(req), cfg.RateWindow)
		if count > cfg.RateThreshold {
			findings = append(findings, FindingRateExceeded)
		}
	}

	if len(findings) > 0 && a.logger != nil {
		a.logger.Warn("suspicious request",
			"method", req.Method,
			"url", req.URL,
			"ip", req.IP,
			"findings", findings,
		)
	}
	return findings
}

func (a *Analyzer) Counters() *window.Store { return a.counters }

func rateKey(req model.RequestDescriptor) string {
	return req.IP + "|" + strings.ToUpper(req.Method)
}

func matchesAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
