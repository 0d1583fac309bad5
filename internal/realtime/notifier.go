package realtime

import (
	"time"

	"github.com/spendwatch/spendwatch/internal/ledger"
	"github.com/spendwatch/spendwatch/internal/risk"
	"github.com/spendwatch/spendwatch/internal/workflow"
)

// WorkflowNotifier adapts the hub to the workflow's event sink. Data is
// flattened to plain maps so subscription filters can match on
// account_id and risk_score.
type WorkflowNotifier struct {
	hub *Hub
}

// NewWorkflowNotifier creates a notifier publishing to the hub.
func NewWorkflowNotifier(hub *Hub) *WorkflowNotifier {
	return &WorkflowNotifier{hub: hub}
}

func (n *WorkflowNotifier) NotifyPending(inst *workflow.Instance) {
	n.hub.Broadcast(&Event{
		Type:      EventDecisionPending,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"workflow_id": inst.ID,
			"account_id":  inst.Candidate.AccountID,
			"merchant_id": inst.Candidate.MerchantID,
			"amount":      inst.Candidate.Amount,
			"risk_score":  inst.Assessment.Score,
			"risk_tier":   string(inst.Assessment.Tier),
		},
	})
}

func (n *WorkflowNotifier) NotifyResolved(inst *workflow.Instance) {
	data := map[string]interface{}{
		"workflow_id": inst.ID,
		"account_id":  inst.Candidate.AccountID,
		"state":       string(inst.State),
		"risk_score":  inst.Assessment.Score,
	}
	if inst.Commit != nil {
		data["commit_status"] = string(inst.Commit.Status)
	}
	n.hub.Broadcast(&Event{
		Type:      EventDecisionResolved,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (n *WorkflowNotifier) NotifyCommitted(rec *ledger.Record, a *risk.Assessment) {
	n.hub.Broadcast(&Event{
		Type:      EventTransaction,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"transaction_id": rec.ID,
			"account_id":     rec.AccountID,
			"merchant_id":    rec.MerchantID,
			"amount":         rec.Amount,
			"risk_score":     rec.RiskScore,
			"risk_tier":      rec.RiskTier,
			"verdict":        string(a.ClassifierVerdict),
		},
	})
}
