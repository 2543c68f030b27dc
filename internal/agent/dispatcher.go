package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

// ActionRunAll runs every registered agent sequentially in registration
// order. One failing agent does not stop the rest.
const ActionRunAll = "run_all"

// ActionStatus reports recent executions instead of running anything
const ActionStatus = "status"

// statusLimit bounds the execution history returned by the status action
const statusLimit = 20

// Result is the outcome of one dispatched action
type Result struct {
	Action string `json:"action"`
	// Executions holds the audit rows of every agent this action ran,
	// or the recent history for the status action
	Executions []*types.AgentExecution `json:"executions"`
}

// Dispatcher routes action names to registered agents. It backs both the
// agents HTTP endpoint and the run CLI command.
type Dispatcher struct {
	runner *Runner
	store  storage.Storage

	// order preserves registration order for run_all
	order    []Agent
	byAction map[string]Agent
}

// NewDispatcher creates a dispatcher with no registered agents
func NewDispatcher(runner *Runner, store storage.Storage) *Dispatcher {
	return &Dispatcher{
		runner:   runner,
		store:    store,
		byAction: make(map[string]Agent),
	}
}

// Register adds an agent under the action name "run_<agent name>".
// Registration order determines run_all execution order.
func (d *Dispatcher) Register(a Agent) {
	action := "run_" + a.Name()
	if _, exists := d.byAction[action]; exists {
		panic(fmt.Sprintf("agent registered twice: %s", a.Name()))
	}
	d.byAction[action] = a
	d.order = append(d.order, a)
}

// ValidActions returns every accepted action name in a stable order
func (d *Dispatcher) ValidActions() []string {
	actions := make([]string, 0, len(d.order)+2)
	for _, a := range d.order {
		actions = append(actions, "run_"+a.Name())
	}
	actions = append(actions, ActionRunAll, ActionStatus)
	return actions
}

// Dispatch executes one action. Unknown actions return an error that
// enumerates the valid ones so callers can self-correct.
func (d *Dispatcher) Dispatch(ctx context.Context, action string) (*Result, error) {
	switch action {
	case ActionRunAll:
		return d.runAll(ctx)
	case ActionStatus:
		execs, err := d.store.GetRecentAgentExecutions(ctx, "", statusLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution history: %w", err)
		}
		return &Result{Action: action, Executions: execs}, nil
	}

	a, ok := d.byAction[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q (valid actions: %s)",
			action, strings.Join(d.ValidActions(), ", "))
	}

	exec, err := d.runner.Run(ctx, a)
	result := &Result{Action: action}
	if exec != nil {
		result.Executions = []*types.AgentExecution{exec}
	}
	// The audit row already carries the failure; the action itself
	// completed, so the caller gets data, not an error
	_ = err
	return result, nil
}

// runAll runs every agent in registration order, collecting all audit rows
func (d *Dispatcher) runAll(ctx context.Context) (*Result, error) {
	result := &Result{Action: ActionRunAll}
	for _, a := range d.order {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("run_all aborted: %w", err)
		}
		exec, _ := d.runner.Run(ctx, a)
		if exec != nil {
			result.Executions = append(result.Executions, exec)
		}
	}
	return result, nil
}
