package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DegradedConfidence is reported when no provider could grade the screenshot.
// It stays below the confidence a real verdict is expected to carry.
const DegradedConfidence = 0.5

// Verifier grades screenshots against success criteria using an ordered list of providers.
type Verifier struct {
	providers     []Provider
	parser        ResponseParser
	fallbackDepth int
	logger        zerolog.Logger
}

// NewVerifier creates a Verifier. providers are in priority order (primary first).
// fallbackDepth is how many providers one call may try; values below 1 mean 2.
func NewVerifier(providers []Provider, parser ResponseParser, fallbackDepth int, logger zerolog.Logger) *Verifier {
	if parser == nil {
		parser = JSONVerdictParser{}
	}
	if fallbackDepth < 1 {
		fallbackDepth = 2
	}
	return &Verifier{
		providers:     providers,
		parser:        parser,
		fallbackDepth: fallbackDepth,
		logger:        logger,
	}
}

// Providers returns the configured provider names in priority order.
func (v *Verifier) Providers() []string {
	names := make([]string, 0, len(v.providers))
	for _, p := range v.providers {
		names = append(names, p.Name())
	}
	return names
}

// Verify grades req.Screenshot. preferred names the provider to try first; empty means primary.
// The returned Result is terminal: verified, failed, or degraded when every provider was unreachable.
func (v *Verifier) Verify(ctx context.Context, req Request, preferred string) Result {
	if len(req.Criteria) == 0 {
		return Result{
			Verified:        true,
			CriteriaResults: []bool{},
			MatchedCriteria: []string{},
			FailedCriteria:  []string{},
			Confidence:      1,
			Details:         "no criteria to verify",
			Outcome:         OutcomeVerified,
		}
	}

	if strings.TrimSpace(req.Screenshot) == "" {
		return failedResult(req.Criteria, "no screenshot to verify", "")
	}

	prompt := BuildPrompt(req)
	chain := v.chain(preferred)

	var attemptErrs []error
	for i, provider := range chain {
		logger := v.logger.With().Str("provider", provider.Name()).Int("attempt", i+1).Logger()

		text, err := provider.Complete(ctx, prompt, req.Screenshot)
		if err != nil {
			logger.Warn().Err(err).Msg("Vision provider failed")
			attemptErrs = append(attemptErrs, err)
			if ctx.Err() != nil {
				return failedResult(req.Criteria, fmt.Sprintf("verification cancelled: %v", ctx.Err()), provider.Name())
			}
			continue
		}

		verdict, err := v.parser.Parse(text, len(req.Criteria))
		if err != nil {
			logger.Error().Err(err).Msg("Vision provider returned an unparseable verdict")
			return failedResult(req.Criteria, fmt.Sprintf("parse error: %v", err), provider.Name())
		}

		result := resultFromVerdict(req.Criteria, verdict, provider.Name())
		logger.Info().
			Bool("verified", result.Verified).
			Float64("confidence", result.Confidence).
			Bool("fallback", i > 0).
			Msg("Screenshot graded")
		return result
	}

	exhausted := fmt.Errorf("%w: %w", ErrProviderExhausted, errors.Join(attemptErrs...))
	if len(chain) == 0 {
		exhausted = fmt.Errorf("%w: no providers configured", ErrProviderExhausted)
	}
	v.logger.Warn().Err(exhausted).Msg("No vision provider reachable, returning degraded verdict")
	return degradedResult(req.Criteria, exhausted)
}

// chain returns the providers to try: preferred first, then the rest in priority order,
// truncated to the fallback depth.
func (v *Verifier) chain(preferred string) []Provider {
	first := -1
	if preferred != "" {
		for i, p := range v.providers {
			if p.Name() == preferred {
				first = i
				break
			}
		}
		if first == -1 {
			v.logger.Warn().Str("provider", preferred).Msg("Preferred vision provider not configured, using priority order")
		}
	}

	ordered := make([]Provider, 0, len(v.providers))
	if first >= 0 {
		ordered = append(ordered, v.providers[first])
	}
	for i, p := range v.providers {
		if i != first {
			ordered = append(ordered, p)
		}
	}

	if len(ordered) > v.fallbackDepth {
		ordered = ordered[:v.fallbackDepth]
	}
	return ordered
}

// resultFromVerdict derives matched/failed lists from the per-criterion booleans, which are authoritative.
func resultFromVerdict(criteria []string, verdict Verdict, provider string) Result {
	matched := make([]string, 0, len(criteria))
	failed := make([]string, 0, len(criteria))
	for i, ok := range verdict.CriteriaResults {
		if ok {
			matched = append(matched, criteria[i])
		} else {
			failed = append(failed, criteria[i])
		}
	}

	verified := verdict.OverallSuccess && len(failed) == 0
	outcome := OutcomeVerified
	if !verified {
		outcome = OutcomeFailed
	}

	return Result{
		Verified:        verified,
		CriteriaResults: verdict.CriteriaResults,
		WhatISee:        verdict.WhatISee,
		MatchedCriteria: matched,
		FailedCriteria:  failed,
		Confidence:      verdict.Confidence,
		Details:         verdict.EvidenceDetails,
		Provider:        provider,
		Outcome:         outcome,
	}
}

func failedResult(criteria []string, details, provider string) Result {
	return Result{
		Verified:        false,
		CriteriaResults: make([]bool, len(criteria)),
		MatchedCriteria: []string{},
		FailedCriteria:  append([]string{}, criteria...),
		Confidence:      0,
		Details:         details,
		Provider:        provider,
		Outcome:         OutcomeFailed,
	}
}

func degradedResult(criteria []string, cause error) Result {
	results := make([]bool, len(criteria))
	for i := range results {
		results[i] = true
	}
	return Result{
		Verified:        true,
		CriteriaResults: results,
		WhatISee:        "",
		MatchedCriteria: append([]string{}, criteria...),
		FailedCriteria:  []string{},
		Confidence:      DegradedConfidence,
		Details:         fmt.Sprintf("verification unavailable, assuming success: %v", cause),
		Outcome:         OutcomeDegraded,
	}
}
