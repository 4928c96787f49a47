// Package entitlement provides the plan-tier feature lookup the enqueuers use
// to decide which optional job types a tenant qualifies for.
package entitlement

import "valdrix/internal/types"

// Registry answers feature-entitlement questions for plan tiers.
// This is the single source of truth for what each plan allows.
type Registry interface {
	// IsFeatureEnabled reports whether the given tier is entitled to the
	// feature. Unknown tiers get the most restrictive answer (trial) to
	// fail safely.
	IsFeatureEnabled(tier types.PlanTier, feature types.FeatureFlag) bool
}

// staticRegistry is a compile-time registry backed by an in-memory map.
// It is the standard implementation for production use; no database or
// external service is required.
type staticRegistry struct {
	features map[types.PlanTier]map[types.FeatureFlag]bool
}

// featureDefaults defines the hardcoded plan entitlements.
//
//	| Plan       | Cost Ingestion | FinOps Analysis | Anomaly Detection | Remediation |
//	|------------|----------------|-----------------|-------------------|-------------|
//	| Trial      | No             | No              | No                | No          |
//	| Starter    | Yes            | No              | No                | No          |
//	| Growth     | Yes            | Yes             | No                | Yes         |
//	| Pro        | Yes            | Yes             | Yes               | Yes         |
//	| Enterprise | Yes            | Yes             | Yes               | Yes         |
var featureDefaults = map[types.PlanTier]map[types.FeatureFlag]bool{
	types.PlanTrial: {},
	types.PlanStarter: {
		types.FeatureCostIngestion: true,
	},
	types.PlanGrowth: {
		types.FeatureCostIngestion:  true,
		types.FeatureFinOpsAnalysis: true,
		types.FeatureRemediation:    true,
	},
	types.PlanPro: {
		types.FeatureCostIngestion:    true,
		types.FeatureFinOpsAnalysis:   true,
		types.FeatureAnomalyDetection: true,
		types.FeatureRemediation:      true,
	},
	types.PlanEnterprise: {
		types.FeatureCostIngestion:    true,
		types.FeatureFinOpsAnalysis:   true,
		types.FeatureAnomalyDetection: true,
		types.FeatureRemediation:      true,
	},
}

// NewStaticRegistry returns a Registry backed by the hardcoded plan
// entitlements.
func NewStaticRegistry() Registry {
	// Copy the defaults so callers cannot mutate the package-level table.
	m := make(map[types.PlanTier]map[types.FeatureFlag]bool, len(featureDefaults))
	for tier, features := range featureDefaults {
		inner := make(map[types.FeatureFlag]bool, len(features))
		for f, v := range features {
			inner[f] = v
		}
		m[tier] = inner
	}
	return &staticRegistry{features: m}
}

// IsFeatureEnabled reports whether the tier is entitled to the feature.
// Unknown tiers are treated as trial (nothing enabled).
func (r *staticRegistry) IsFeatureEnabled(tier types.PlanTier, feature types.FeatureFlag) bool {
	features, ok := r.features[tier]
	if !ok {
		return false
	}
	return features[feature]
}
