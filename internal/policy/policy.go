// Package policy decides whether a change passes the coverage gate.
// The two drivers reflect two deliberately different gating styles and
// are never merged: one checks overall coverage first and falls back
// to diff coverage, the other gates on diff coverage alone.
package policy

import (
	"errors"
	"fmt"

	"github.com/covgate/covgate/internal/cover"
	"github.com/covgate/covgate/internal/logger"
)

// Policy names, as accepted on the command line.
const (
	PolicyExactThenDiff = "exact-then-diff"
	PolicyDiffOnly      = "diff-only"
)

// ErrThresholdNotMet marks the expected failing outcome: the code was
// measured fine, it just is not covered enough. Tooling failures are
// returned as other error types.
var ErrThresholdNotMet = errors.New("coverage threshold not met")

// Outcome is a terminal policy state.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// Reason says which rule decided the verdict.
type Reason string

const (
	// ReasonExactAboveBaseline: overall coverage did not regress.
	ReasonExactAboveBaseline Reason = "exact-above-baseline"
	// ReasonBootstrap: the baseline was supplied by the operator to
	// bootstrap the gate; regressions are reported, never enforced.
	ReasonBootstrap Reason = "bootstrap-baseline"
	// ReasonDiffAboveTarget: the changed lines are covered well enough.
	ReasonDiffAboveTarget Reason = "diff-above-target"
	// ReasonDiffBelowTarget: the changed lines are not covered enough.
	ReasonDiffBelowTarget Reason = "diff-below-target"
	// ReasonExactDroppedTooFar: diff coverage passed but the overall
	// figure fell too far below the baseline to trust the run.
	ReasonExactDroppedTooFar Reason = "exact-dropped-too-far"
)

// Verdict is the full result of a policy run. Diff is nil when the
// verdict was reached without computing diff coverage.
type Verdict struct {
	Policy     string
	Outcome    Outcome
	Reason     Reason
	Exact      *cover.Tally
	Baseline   float64
	Diff       *cover.DiffResult
	DiffTarget float64
	// Required is how many more covered lines the change needs when it
	// failed on diff coverage.
	Required int
}

// DiffFn computes diff coverage on demand, so a run that passes on the
// overall figure never diffs at all.
type DiffFn func() (*cover.DiffResult, error)

// Options tunes the exact-then-diff driver.
type Options struct {
	// RelaxedTarget replaces the diff target for small changes. Zero
	// means 0.75.
	RelaxedTarget float64
	// RelaxUncoveredMax is the uncovered-line count up to which the
	// relaxed target applies. Zero means 5.
	RelaxUncoveredMax int
	// SanityMargin is how far overall coverage may fall below the
	// baseline before a passing diff is no longer trusted. Zero means
	// 0.10.
	SanityMargin float64
	// NoRelax disables the small-change relaxation.
	NoRelax bool
}

func (o Options) withDefaults() Options {
	if o.RelaxedTarget == 0 {
		o.RelaxedTarget = 0.75
	}
	if o.RelaxUncoveredMax == 0 {
		o.RelaxUncoveredMax = 5
	}
	if o.SanityMargin == 0 {
		o.SanityMargin = 0.10
	}
	return o
}

// ExactThenDiff gates on overall coverage first: a run that holds the
// baseline passes outright, everything else must make up for it on the
// changed lines.
type ExactThenDiff struct {
	// Baseline is the overall ratio the run is measured against.
	Baseline float64
	// DiffTarget is the ratio required of the changed lines when the
	// overall figure regressed. Zero means the baseline itself.
	DiffTarget float64
	// Bootstrap marks an operator-supplied baseline: regressions are
	// logged but the run always passes, so the gate can be introduced
	// on a repository with no recorded history.
	Bootstrap bool
	Options   Options
}

// Run evaluates the policy. diff is only invoked when the overall
// ratio fell below the baseline.
func (p *ExactThenDiff) Run(exact cover.Tally, diff DiffFn) (*Verdict, error) {
	verdict := &Verdict{
		Policy:   PolicyExactThenDiff,
		Baseline: p.Baseline,
		Exact:    &exact,
	}

	if exact.Ratio() >= p.Baseline {
		verdict.Outcome = OutcomePass
		verdict.Reason = ReasonExactAboveBaseline
		return verdict, nil
	}
	if p.Bootstrap {
		logger.Warn("overall coverage %s is below the supplied baseline %s, passing anyway to bootstrap the gate",
			cover.FormatPercent(exact.Ratio()), cover.FormatPercent(p.Baseline))
		verdict.Outcome = OutcomePass
		verdict.Reason = ReasonBootstrap
		return verdict, nil
	}

	logger.Info("overall coverage %s regressed below baseline %s, checking changed lines",
		cover.FormatPercent(exact.Ratio()), cover.FormatPercent(p.Baseline))
	result, err := diff()
	if err != nil {
		return nil, err
	}
	verdict.Diff = result

	opts := p.Options.withDefaults()
	target := p.DiffTarget
	if target == 0 {
		target = p.Baseline
	}
	if !opts.NoRelax && result.Tally.Uncovered <= opts.RelaxUncoveredMax {
		target = opts.RelaxedTarget
	}
	verdict.DiffTarget = target

	if result.Tally.Ratio() < target {
		verdict.Outcome = OutcomeFail
		verdict.Reason = ReasonDiffBelowTarget
		verdict.Required = cover.RequiredLines(result.Tally, target)
		return verdict, fmt.Errorf("%w: diff coverage %s is below the target %s",
			ErrThresholdNotMet, cover.FormatPercent(result.Tally.Ratio()), cover.FormatPercent(target))
	}
	if exact.Ratio() < p.Baseline-opts.SanityMargin {
		verdict.Outcome = OutcomeFail
		verdict.Reason = ReasonExactDroppedTooFar
		return verdict, fmt.Errorf("%w: overall coverage dropped more than %s below the baseline although diff coverage is fine, check whether the test pipelines ran properly",
			ErrThresholdNotMet, cover.FormatPercent(opts.SanityMargin))
	}

	verdict.Outcome = OutcomePass
	verdict.Reason = ReasonDiffAboveTarget
	return verdict, nil
}

// DiffOnly gates on diff coverage alone, the divergent driver variant
// that never looks at overall coverage.
type DiffOnly struct {
	// Target is the ratio required of the changed lines.
	Target float64
}

// Run evaluates the policy.
func (p *DiffOnly) Run(diff DiffFn) (*Verdict, error) {
	result, err := diff()
	if err != nil {
		return nil, err
	}
	verdict := &Verdict{
		Policy:     PolicyDiffOnly,
		Diff:       result,
		DiffTarget: p.Target,
	}

	if result.Tally.Ratio() < p.Target {
		verdict.Outcome = OutcomeFail
		verdict.Reason = ReasonDiffBelowTarget
		verdict.Required = cover.RequiredLines(result.Tally, p.Target)
		return verdict, fmt.Errorf("%w: diff coverage %s is below the target %s",
			ErrThresholdNotMet, cover.FormatPercent(result.Tally.Ratio()), cover.FormatPercent(p.Target))
	}

	verdict.Outcome = OutcomePass
	verdict.Reason = ReasonDiffAboveTarget
	return verdict, nil
}
