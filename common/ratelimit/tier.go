package ratelimit

import "github.com/lyzr/flowrunner/workflow"

// Tier classifies a workflow by execution cost.
type Tier string

const (
	// TierLight covers workflows with no AI nodes.
	TierLight Tier = "light"
	// TierStandard covers workflows with one or two AI nodes.
	TierStandard Tier = "standard"
	// TierHeavy covers workflows with three or more AI nodes.
	TierHeavy Tier = "heavy"
)

// TierConfig is the per-tier submission budget.
type TierConfig struct {
	Tier          Tier
	Limit         int64
	WindowSeconds int
}

var tierConfigs = map[Tier]TierConfig{
	TierLight:    {Tier: TierLight, Limit: 100, WindowSeconds: 60},
	TierStandard: {Tier: TierStandard, Limit: 20, WindowSeconds: 60},
	TierHeavy:    {Tier: TierHeavy, Limit: 5, WindowSeconds: 60},
}

func configFor(tier Tier) TierConfig {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg
	}
	// Unknown tiers get the most restrictive budget.
	return tierConfigs[TierHeavy]
}

// TierFor classifies a workflow by counting its AI nodes. HTTP calls block
// on remote services but cost nothing; AI completions are the expensive
// resource worth budgeting separately.
func TierFor(wf *workflow.Workflow) Tier {
	aiNodes := 0
	for _, node := range wf.Nodes {
		if node.Type == "openai" {
			aiNodes++
		}
	}
	switch {
	case aiNodes == 0:
		return TierLight
	case aiNodes <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}
