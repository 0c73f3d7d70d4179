package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/pkg/core/logging"
)

// Default Redis keys
const (
	DefaultGoalKey      = "wiener:goals"
	DefaultStateChannel = "wiener:state"
	DefaultPlanKey      = "wiener:plans"
	DefaultCancelKey    = "wiener:cancelled"
)

// Commander is the subset of the Redis client the bridge uses
type Commander interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
}

// BridgeConfig names the Redis keys shared with the external planner
type BridgeConfig struct {
	URL          string
	GoalKey      string
	StateChannel string
	PlanKey      string
	// CancelKey lists goals the agent no longer wants planned
	CancelKey string
}

func (c *BridgeConfig) defaults() {
	if c.GoalKey == "" {
		c.GoalKey = DefaultGoalKey
	}
	if c.StateChannel == "" {
		c.StateChannel = DefaultStateChannel
	}
	if c.PlanKey == "" {
		c.PlanKey = DefaultPlanKey
	}
	if c.CancelKey == "" {
		c.CancelKey = DefaultCancelKey
	}
}

// GoalMessage is pushed onto the goal list
type GoalMessage struct {
	Goal     string     `json:"goal"`
	Hard     bool       `json:"hard"`
	Utility  float64    `json:"utility"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// StateMessage is published on the state channel
type StateMessage struct {
	Facts []string `json:"facts"`
}

// PlanMessage is popped from the plan list
type PlanMessage struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// Bridge delegates planning to an external process through Redis: goals
// are pushed onto a list, state updates are published on a channel and
// ready plans are popped from a second list.
type Bridge struct {
	rdb    Commander
	closer func() error
	cfg    BridgeConfig
	logger *logging.Logger
	seq    int
}

// NewBridge uses an existing client
func NewBridge(rdb Commander, cfg BridgeConfig) *Bridge {
	cfg.defaults()
	return &Bridge{
		rdb:    rdb,
		cfg:    cfg,
		logger: logging.New("planner-redis"),
	}
}

// DialBridge connects to the Redis server at cfg.URL
func DialBridge(ctx context.Context, cfg BridgeConfig) (*Bridge, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, werr.Wrap(err, "invalid redis url").WithCode(werr.CodeConfigError)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, werr.Wrap(err, "redis unreachable").WithCode(werr.CodeReferenceUnavailable)
	}
	b := NewBridge(client, cfg)
	b.closer = client.Close
	b.logger.Info("Connected to planner bus", "addr", opt.Addr, "goals", b.cfg.GoalKey, "plans", b.cfg.PlanKey)
	return b, nil
}

// SubmitGoal pushes the goal for the external planner
func (b *Bridge) SubmitGoal(ctx context.Context, goal script.Term, hard bool, utility float64, deadline time.Time) error {
	msg := GoalMessage{Goal: goal.String(), Hard: hard, Utility: utility}
	if !deadline.IsZero() {
		msg.Deadline = &deadline
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}
	if err := b.rdb.RPush(ctx, b.cfg.GoalKey, data).Err(); err != nil {
		return werr.Wrap(err, "failed to push goal").WithCode(werr.CodeReferenceUnavailable)
	}
	b.logger.Debug("Goal pushed", "goal", msg.Goal, "key", b.cfg.GoalKey)
	return nil
}

// Withdraw pushes the goal onto the cancel list
func (b *Bridge) Withdraw(ctx context.Context, goal script.Term) error {
	data, err := json.Marshal(GoalMessage{Goal: goal.String()})
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}
	if err := b.rdb.RPush(ctx, b.cfg.CancelKey, data).Err(); err != nil {
		return werr.Wrap(err, "failed to push cancellation").WithCode(werr.CodeReferenceUnavailable)
	}
	b.logger.Debug("Goal withdrawn", "goal", goal.String(), "key", b.cfg.CancelKey)
	return nil
}

// UpdateState publishes facts to the external planner
func (b *Bridge) UpdateState(ctx context.Context, facts []script.Term) error {
	if len(facts) == 0 {
		return nil
	}
	msg := StateMessage{Facts: make([]string, len(facts))}
	for i, f := range facts {
		msg.Facts[i] = f.String()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.cfg.StateChannel, data).Err(); err != nil {
		return werr.Wrap(err, "failed to publish state").WithCode(werr.CodeReferenceUnavailable)
	}
	return nil
}

// GetPlan pops the next ready plan, if any
func (b *Bridge) GetPlan(ctx context.Context) (*script.Node, bool, error) {
	data, err := b.rdb.LPop(ctx, b.cfg.PlanKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, werr.Wrap(err, "failed to pop plan").WithCode(werr.CodeReferenceUnavailable)
	}

	var msg PlanMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, werr.Wrap(err, "malformed plan").WithCode(werr.CodeInvalidInput)
	}
	steps := make([]script.Term, 0, len(msg.Steps))
	for _, s := range msg.Steps {
		t, err := script.ParseTerm(s)
		if err != nil {
			return nil, false, werr.Wrap(err, fmt.Sprintf("malformed plan step %q", s)).WithCode(werr.CodeInvalidInput)
		}
		steps = append(steps, t)
	}
	b.seq++
	name := msg.Name
	if name == "" {
		name = fmt.Sprintf("remote_%d", b.seq)
	}
	b.logger.Info("Plan received", "plan", name, "steps", len(steps))
	return script.NewSequence(name, steps), true, nil
}

// Close closes the client opened by DialBridge
func (b *Bridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
