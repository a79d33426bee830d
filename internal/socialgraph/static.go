package socialgraph

import (
	"context"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

// Static answers every check with the same outcome. It backs local runs
// without a Neynar API key.
type Static struct {
	Outcome Outcome
}

func (s Static) CheckAction(context.Context, string, domain.ActionKind, domain.TargetData) (Outcome, error) {
	return s.Outcome, nil
}
