package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gatehouse-io/gatehouse/model"
)

const purchaseApprovalYAML = `
id: purchase-approval
payloadKind: purchase
schema:
  fields:
    - field: amount
      required: true
states:
  - name: Pending
    type: start
    actions:
      - name: Submit
        nextState: Review
        assignedRoles: [employee]
        automaticValidation: true
  - name: Review
    actions:
      - name: Escalate
        nextState: Escalated
        auto: true
        condition: "amount > 1000"
      - name: Approve
        nextState: Approved
        assignedRoles: [manager]
  - name: Escalated
    actions:
      - name: Approve
        nextState: Approved
        assignedGroups: [finance]
  - name: Approved
    type: completed
  - name: Rejected
    type: rejected
`

func purchaseHarness(t *testing.T) *TestHarness {
	t.Helper()
	return NewTestHarness(t, map[string]string{
		"purchase-approval.yaml": purchaseApprovalYAML,
	})
}

func createPurchase(t *testing.T, h *TestHarness, token string, amount float64) *model.RequestInstance {
	t.Helper()
	resp := h.POST("/definitions/purchase-approval/requests", map[string]any{
		"payload_kind": "purchase",
		"payload":      map[string]any{"amount": amount},
	}, token)
	h.AssertStatus(t, resp, http.StatusCreated)

	var inst model.RequestInstance
	h.ParseJSON(resp, &inst)
	return &inst
}

func TestLifecycle_autoEscalationAndGroupApproval(t *testing.T) {
	h := purchaseHarness(t)
	employee := h.GenerateToken(EmployeeClaims("bob"))
	manager := h.GenerateToken(ManagerClaims())
	finance := h.GenerateToken(FinanceClaims())

	inst := createPurchase(t, h, employee, 5000)
	if inst.CurrentState != "Pending" {
		t.Fatalf("CurrentState = %q, want Pending", inst.CurrentState)
	}

	// Submit crosses into Review; the amount trips the auto escalation.
	resp := h.POST(fmt.Sprintf("/requests/%s/actions/Submit", inst.ID), nil, employee)
	h.AssertStatus(t, resp, http.StatusOK)
	var afterSubmit model.RequestInstance
	h.ParseJSON(resp, &afterSubmit)
	if afterSubmit.CurrentState != "Escalated" {
		t.Fatalf("CurrentState = %q, want Escalated", afterSubmit.CurrentState)
	}

	// A manager role does not satisfy the finance group assignment.
	resp = h.POST(fmt.Sprintf("/requests/%s/actions/Approve", inst.ID), nil, manager)
	h.AssertStatus(t, resp, http.StatusForbidden)

	resp = h.POST(fmt.Sprintf("/requests/%s/actions/Approve", inst.ID), nil, finance)
	h.AssertStatus(t, resp, http.StatusOK)
	var final model.RequestInstance
	h.ParseJSON(resp, &final)
	if final.CurrentState != "Approved" || final.Status != model.RequestStatusCompleted {
		t.Fatalf("final = %s/%s, want Approved/completed", final.CurrentState, final.Status)
	}

	// Full audit trail: creation, submit, auto escalation, approval.
	resp = h.GET(fmt.Sprintf("/requests/%s/history", inst.ID), finance)
	h.AssertStatus(t, resp, http.StatusOK)
	var hist struct {
		History []model.Transition `json:"history"`
	}
	h.ParseJSON(resp, &hist)
	if len(hist.History) != 4 {
		t.Fatalf("history length = %d, want 4: %+v", len(hist.History), hist.History)
	}
	if hist.History[0].Action != "Submitted" || hist.History[0].PerformedBy != "Requester" {
		t.Errorf("creation record = %+v", hist.History[0])
	}
	if hist.History[2].Action != "Escalate" || hist.History[2].PerformedBy != "bob" {
		t.Errorf("auto escalation record = %+v", hist.History[2])
	}
	if hist.History[3].ToState != "Approved" || hist.History[3].PerformedBy != "carol" {
		t.Errorf("approval record = %+v", hist.History[3])
	}
}

func TestLifecycle_smallAmountSkipsEscalation(t *testing.T) {
	h := purchaseHarness(t)
	employee := h.GenerateToken(EmployeeClaims("bob"))
	manager := h.GenerateToken(ManagerClaims())

	inst := createPurchase(t, h, employee, 250)

	resp := h.POST(fmt.Sprintf("/requests/%s/actions/Submit", inst.ID), nil, employee)
	h.AssertStatus(t, resp, http.StatusOK)
	var afterSubmit model.RequestInstance
	h.ParseJSON(resp, &afterSubmit)
	if afterSubmit.CurrentState != "Review" {
		t.Fatalf("CurrentState = %q, want Review", afterSubmit.CurrentState)
	}

	// The manager sees Approve; the escalation action is automatic and
	// never offered.
	resp = h.GET(fmt.Sprintf("/requests/%s/actions", inst.ID), manager)
	h.AssertStatus(t, resp, http.StatusOK)
	var actions struct {
		Actions []struct {
			Name string `json:"name"`
		} `json:"actions"`
	}
	h.ParseJSON(resp, &actions)
	if len(actions.Actions) != 1 || actions.Actions[0].Name != "Approve" {
		t.Fatalf("actions = %+v, want [Approve]", actions.Actions)
	}

	resp = h.POST(fmt.Sprintf("/requests/%s/actions/Approve", inst.ID), nil, manager)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestLifecycle_validationRejectsMissingField(t *testing.T) {
	h := purchaseHarness(t)
	employee := h.GenerateToken(EmployeeClaims("bob"))

	inst := createPurchase(t, h, employee, 250)

	// Replacing the payload with one missing the required field fails the
	// structural pass before any state change.
	resp := h.POST(fmt.Sprintf("/requests/%s/actions/Submit", inst.ID),
		map[string]any{"payload": map[string]any{"note": "no amount"}}, employee)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)

	stored, err := h.Store.Get(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.CurrentState != "Pending" {
		t.Errorf("failed validation mutated state: %q", stored.CurrentState)
	}
}

func TestLifecycle_idempotentReplay(t *testing.T) {
	h := purchaseHarness(t)
	employee := h.GenerateToken(EmployeeClaims("bob"))

	inst := createPurchase(t, h, employee, 250)
	headers := map[string]string{"X-Idempotency-Key": "submit-1"}
	path := fmt.Sprintf("/requests/%s/actions/Submit", inst.ID)

	resp := h.POSTWithHeaders(path, nil, employee, headers)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// The same key replays the stored result instead of re-executing.
	resp = h.POSTWithHeaders(path, nil, employee, headers)
	h.AssertStatus(t, resp, http.StatusOK)
	var replay model.RequestInstance
	h.ParseJSON(resp, &replay)
	if replay.CurrentState != "Review" {
		t.Errorf("replay state = %q, want Review", replay.CurrentState)
	}
}

func TestLifecycle_authentication(t *testing.T) {
	h := purchaseHarness(t)

	resp := h.GET("/requests", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = h.GET("/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health without token: status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
