package backends

import (
	"context"

	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/detection/rules"
)

// RuleModelPath is reported as the artifact path of the rule backend.
const RuleModelPath = "<rule_based>"

// RuleBackend answers with the heuristic rule engine. It needs no artifacts
// and never fails.
type RuleBackend struct {
	engine *rules.Engine
}

// NewRuleBackend wraps engine; nil uses a default engine.
func NewRuleBackend(engine *rules.Engine) *RuleBackend {
	if engine == nil {
		engine = rules.NewEngine()
	}
	return &RuleBackend{engine: engine}
}

func (b *RuleBackend) Kind() Kind { return KindRule }

func (b *RuleBackend) Info() Info {
	return Info{
		Kind:      KindRule,
		Name:      "gunshot_rules",
		Version:   "1.0",
		Type:      "rule_based",
		Framework: "rules",
		ModelPath: RuleModelPath,
	}
}

// Predict delegates to the rule engine.
func (b *RuleBackend) Predict(_ context.Context, in Input) (prediction.Result, error) {
	return b.Answer(in), nil
}

// Answer is Predict without the error return, for callers that need an
// answer that cannot fail.
func (b *RuleBackend) Answer(in Input) prediction.Result {
	return b.engine.Predict(in.Descriptor)
}

func (b *RuleBackend) Close() error { return nil }
