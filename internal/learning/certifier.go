package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

// Trust score weights. The four components sum to a 0..100 scale.
const (
	testWeight = 40.0
	gateWeight = 30.0

	securityCleanScore    = 15.0
	securityWarningsScore = 8.0

	perfFastScore = 15.0
	perfOKScore   = 10.0
	perfSlowScore = 5.0

	perfFastMs = 200.0
	perfOKMs   = 500.0
)

// Certifier computes deterministic trust certificates. Scoring involves no
// oracle call: the same BuildResult always yields the same score.
type Certifier struct {
	store storage.Storage
}

func NewCertifier(store storage.Storage) *Certifier {
	return &Certifier{store: store}
}

// Score computes the 0..100 trust score for a build result. Pure function
// of its input.
func Score(r *types.BuildResult) (total, security, performance float64) {
	var tests float64
	if r.TestsTotal > 0 {
		tests = float64(r.TestsPassed) / float64(r.TestsTotal) * testWeight
	}
	var gates float64
	if r.GatesTotal > 0 {
		gates = float64(r.GatesPassed) / float64(r.GatesTotal) * gateWeight
	}

	switch {
	case r.SecurityClean:
		security = securityCleanScore
	case r.SecurityWarnings:
		security = securityWarningsScore
	}

	switch {
	case r.P95Ms < perfFastMs:
		performance = perfFastScore
	case r.P95Ms < perfOKMs:
		performance = perfOKScore
	default:
		performance = perfSlowScore
	}

	return tests + gates + security + performance, security, performance
}

// Certify scores the build and upserts its certificate. Re-certifying the
// same build replaces the prior certificate rather than adding one.
func (c *Certifier) Certify(ctx context.Context, buildID string, result *types.BuildResult) (*types.TrustCertificate, error) {
	if buildID == "" {
		return nil, fmt.Errorf("build id is required")
	}

	total, security, performance := Score(result)

	cert := &types.TrustCertificate{
		BuildID:    buildID,
		Module:     result.Module,
		Version:    canonicalVersion(result.Version),
		TrustScore: total,
		Evidence: map[string]interface{}{
			"tests_passed":      result.TestsPassed,
			"tests_total":       result.TestsTotal,
			"gates_passed":      result.GatesPassed,
			"gates_total":       result.GatesTotal,
			"security_clean":    result.SecurityClean,
			"security_warnings": result.SecurityWarnings,
			"p95_ms":            result.P95Ms,
			"heal_rounds":       result.HealRounds,
		},
		GatesPassed:      result.GatesPassed,
		GatesTotal:       result.GatesTotal,
		TestsPassed:      result.TestsPassed,
		TestsTotal:       result.TestsTotal,
		SecurityScore:    security,
		PerformanceScore: performance,
		CertifiedAt:      time.Now().UTC(),
	}

	if err := c.store.UpsertTrustCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("failed to store trust certificate: %w", err)
	}
	return cert, nil
}

// canonicalVersion normalizes to semver canonical form when the input is a
// valid semver string, with or without the leading v. Anything else passes
// through untouched.
func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	withV := v
	if !strings.HasPrefix(v, "v") {
		withV = "v" + v
	}
	if semver.IsValid(withV) {
		return semver.Canonical(withV)
	}
	return v
}
