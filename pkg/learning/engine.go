package learning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homelab/warden/pkg/models"
)

const (
	// targetMatchBoost is added to similarity when both the alert and the
	// pattern carry a target host/system and they match.
	targetMatchBoost = 0.1

	defaultCacheTTL = 5 * time.Minute
)

// Candidate is a pattern scored against one incoming alert.
type Candidate struct {
	Pattern             *models.RemediationPattern
	Similarity          float64
	EffectiveConfidence float64
}

// PatternStore is the subset of store.Patterns the engine needs.
type PatternStore interface {
	All(ctx context.Context) ([]*models.RemediationPattern, error)
	ByFingerprint(ctx context.Context, alertName, symptomFingerprint string) (*models.RemediationPattern, error)
	Insert(ctx context.Context, p *models.RemediationPattern) (int64, error)
	RecordOutcome(ctx context.Context, id int64, success bool, commands []string, execDurationSec float64) error
}

// FailureStore is the subset of store.Failures the engine needs.
type FailureStore interface {
	Record(ctx context.Context, signature, alertName, alertInstance, symptomFingerprint string, commands []string, reason string) error
	Get(ctx context.Context, signature string) (*models.FailurePattern, error)
}

// Engine is the Learning Engine (C9): pattern lookup, extraction, and
// failure-pattern recording.
type Engine struct {
	patterns PatternStore
	failures FailureStore
	cacheTTL time.Duration

	mu       sync.Mutex
	cache    []*models.RemediationPattern
	cachedAt time.Time
}

// New builds an Engine backed by the given DAOs.
func New(patterns PatternStore, failures FailureStore) *Engine {
	return &Engine{patterns: patterns, failures: failures, cacheTTL: defaultCacheTTL}
}

// refresh reloads the pattern cache if it is stale. Callers hold no lock;
// refresh takes and releases the engine's mutex itself.
func (e *Engine) refresh(ctx context.Context) error {
	e.mu.Lock()
	stale := e.cachedAt.IsZero() || time.Since(e.cachedAt) > e.cacheTTL
	e.mu.Unlock()
	if !stale {
		return nil
	}

	patterns, err := e.patterns.All(ctx)
	if err != nil {
		return fmt.Errorf("refresh pattern cache: %w", err)
	}

	e.mu.Lock()
	e.cache = patterns
	e.cachedAt = time.Now()
	e.mu.Unlock()
	return nil
}

// invalidate forces the next refresh to reload from the store.
func (e *Engine) invalidate() {
	e.mu.Lock()
	e.cachedAt = time.Time{}
	e.mu.Unlock()
}

func (e *Engine) snapshot() []*models.RemediationPattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.RemediationPattern, len(e.cache))
	copy(out, e.cache)
	return out
}

// alertTargetSystem extracts the alert's target-system label, checked in
// priority order: "system", then "remediation_host" (§4.9).
func alertTargetSystem(labels map[string]string) string {
	if v, ok := labels["system"]; ok && v != "" {
		return v
	}
	return labels["remediation_host"]
}

// Lookup scores every cached, eligible pattern against alertName/labels and
// returns candidates sorted by effective confidence, highest first. A
// pattern is eligible when its alert_name matches, success_count >= 2,
// confidence >= 0.5, and target-host discipline is satisfied (§4.9, §7
// invariant 6).
func (e *Engine) Lookup(ctx context.Context, alertName string, labels map[string]string) ([]Candidate, error) {
	if err := e.refresh(ctx); err != nil {
		return nil, err
	}

	alertFP := BuildFingerprint(alertName, labels)
	alertTarget := alertTargetSystem(labels)

	var candidates []Candidate
	for _, p := range e.snapshot() {
		if p.AlertName != alertName {
			continue
		}
		if !p.MeetsLookupThreshold() {
			continue
		}

		if alertTarget != "" {
			if p.TargetHost == "" {
				// Alert has system info but pattern is generic: skip so a
				// specific pattern isn't overridden by a generic one.
				continue
			}
			if !strings.EqualFold(p.TargetHost, alertTarget) {
				continue
			}
		}

		similarity := Similarity(alertFP, p.SymptomFingerprint)
		boost := 0.0
		if alertTarget != "" && p.TargetHost != "" && strings.EqualFold(p.TargetHost, alertTarget) {
			boost = targetMatchBoost
		}
		effectiveSimilarity := similarity + boost
		if effectiveSimilarity > 1.0 {
			effectiveSimilarity = 1.0
		}

		candidates = append(candidates, Candidate{
			Pattern:             p,
			Similarity:          effectiveSimilarity,
			EffectiveConfidence: p.Confidence * effectiveSimilarity,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EffectiveConfidence > candidates[j].EffectiveConfidence
	})
	return candidates, nil
}

// Decide runs Lookup and classifies the best candidate into a decision
// tier (§4.9): TierDirect applies the pattern and skips the LLM, TierContext
// passes it as a hint, TierIgnore means call the LLM with no pattern
// assistance.
func (e *Engine) Decide(ctx context.Context, alertName string, labels map[string]string) (models.EffectiveConfidenceTier, *models.RemediationPattern, float64, error) {
	candidates, err := e.Lookup(ctx, alertName, labels)
	if err != nil {
		return models.TierIgnore, nil, 0, err
	}
	if len(candidates) == 0 {
		return models.TierIgnore, nil, 0, nil
	}
	best := candidates[0]
	return models.ClassifyEffectiveConfidence(best.EffectiveConfidence), best.Pattern, best.EffectiveConfidence, nil
}

// RecordOutcome persists the result of using (or not using) a pattern and
// invalidates the cache so the next lookup sees the new confidence.
func (e *Engine) RecordOutcome(ctx context.Context, patternID int64, success bool, commands []string, execDurationSec float64) error {
	if err := e.patterns.RecordOutcome(ctx, patternID, success, commands, execDurationSec); err != nil {
		return err
	}
	e.invalidate()
	return nil
}

// ExtractPattern creates or updates a remediation pattern from a verified
// successful attempt (§4.9). Callers must only invoke this after the
// Verifier has confirmed the alert actually cleared.
func (e *Engine) ExtractPattern(ctx context.Context, attempt *models.RemediationAttempt, labels map[string]string) (int64, error) {
	fingerprint := BuildFingerprint(attempt.AlertName, labels)
	category := Categorize(attempt.AlertName)
	rootCause := ExtractRootCause(attempt.AIAnalysis)

	existing, err := e.patterns.ByFingerprint(ctx, attempt.AlertName, fingerprint)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		if err := e.RecordOutcome(ctx, existing.ID, true, attempt.ExecutedCommands, attempt.ExecutionDurationSecs); err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	p := &models.RemediationPattern{
		AlertName:          attempt.AlertName,
		Category:           category,
		SymptomFingerprint: fingerprint,
		RootCause:          rootCause,
		SolutionCommands:   attempt.ExecutedCommands,
		SuccessCount:       1,
		Confidence:         models.LaplaceConfidence(1, 0),
		RiskLevel:          attempt.RiskLevel,
		TargetHost:         alertTargetSystem(labels),
		Enabled:            true,
	}
	id, err := e.patterns.Insert(ctx, p)
	if err != nil {
		return 0, err
	}
	e.invalidate()
	return id, nil
}

// FailureSignature computes the stable signature used to key a failure
// pattern: sha256(alertName | sorted(commands)), hex-encoded and truncated
// to 32 characters (§3).
func FailureSignature(alertName string, commands []string) string {
	sorted := append([]string(nil), commands...)
	sort.Strings(sorted)
	content := alertName + "|" + strings.Join(sorted, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:32]
}

// RecordFailure upserts a failure pattern for a failed remediation attempt,
// so future plans can avoid repeating it.
func (e *Engine) RecordFailure(ctx context.Context, alertName, alertInstance, fingerprint string, commands []string, reason string) error {
	signature := FailureSignature(alertName, commands)
	return e.failures.Record(ctx, signature, alertName, alertInstance, fingerprint, commands, reason)
}

// ShouldAvoidCommands reports whether the given command set has previously
// failed at least minFailures times for this alert, and if so, why.
func (e *Engine) ShouldAvoidCommands(ctx context.Context, alertName string, commands []string, minFailures int) (bool, string, error) {
	signature := FailureSignature(alertName, commands)
	fp, err := e.failures.Get(ctx, signature)
	if err != nil {
		return false, "", err
	}
	if fp == nil || fp.FailureCount < minFailures {
		return false, "", nil
	}
	return true, fmt.Sprintf("pattern failed %d times: %s", fp.FailureCount, fp.FailureReason), nil
}
