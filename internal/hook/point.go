package hook

import (
	"fmt"
	"strings"
)

// Point identifies where interception occurs. Points are compared by value
// and used directly as registry keys.
type Point string

// CustomPrefix marks a Custom point name.
const CustomPrefix = "Custom:"

// System points.
const (
	SystemStartup  Point = "SystemStartup"
	SystemShutdown Point = "SystemShutdown"
)

// Agent points.
const (
	BeforeAgentInit      Point = "BeforeAgentInit"
	AfterAgentInit       Point = "AfterAgentInit"
	BeforeAgentExecution Point = "BeforeAgentExecution"
	AfterAgentExecution  Point = "AfterAgentExecution"
	AgentError           Point = "AgentError"
	BeforeAgentShutdown  Point = "BeforeAgentShutdown"
	AfterAgentShutdown   Point = "AfterAgentShutdown"
)

// Tool points.
const (
	BeforeToolDiscovery Point = "BeforeToolDiscovery"
	AfterToolDiscovery  Point = "AfterToolDiscovery"
	BeforeToolExecution Point = "BeforeToolExecution"
	AfterToolExecution  Point = "AfterToolExecution"
	ToolValidation      Point = "ToolValidation"
	ToolError           Point = "ToolError"
)

// Workflow points.
const (
	BeforeWorkflowStart     Point = "BeforeWorkflowStart"
	WorkflowStageTransition Point = "WorkflowStageTransition"
	BeforeWorkflowStage     Point = "BeforeWorkflowStage"
	AfterWorkflowStage      Point = "AfterWorkflowStage"
	WorkflowCheckpoint      Point = "WorkflowCheckpoint"
	WorkflowRollback        Point = "WorkflowRollback"
	AfterWorkflowComplete   Point = "AfterWorkflowComplete"
	WorkflowError           Point = "WorkflowError"
)

// State points.
const (
	BeforeStateRead  Point = "BeforeStateRead"
	AfterStateRead   Point = "AfterStateRead"
	BeforeStateWrite Point = "BeforeStateWrite"
	AfterStateWrite  Point = "AfterStateWrite"
	StateConflict    Point = "StateConflict"
	StateMigration   Point = "StateMigration"
)

// Session points.
const (
	SessionStart      Point = "SessionStart"
	SessionEnd        Point = "SessionEnd"
	SessionCheckpoint Point = "SessionCheckpoint"
	SessionSave       Point = "SessionSave"
	SessionRestore    Point = "SessionRestore"
)

var builtinPoints = map[Point]string{
	SystemStartup:  "system",
	SystemShutdown: "system",

	BeforeAgentInit:      "agent",
	AfterAgentInit:       "agent",
	BeforeAgentExecution: "agent",
	AfterAgentExecution:  "agent",
	AgentError:           "agent",
	BeforeAgentShutdown:  "agent",
	AfterAgentShutdown:   "agent",

	BeforeToolDiscovery: "tool",
	AfterToolDiscovery:  "tool",
	BeforeToolExecution: "tool",
	AfterToolExecution:  "tool",
	ToolValidation:      "tool",
	ToolError:           "tool",

	BeforeWorkflowStart:     "workflow",
	WorkflowStageTransition: "workflow",
	BeforeWorkflowStage:     "workflow",
	AfterWorkflowStage:      "workflow",
	WorkflowCheckpoint:      "workflow",
	WorkflowRollback:        "workflow",
	AfterWorkflowComplete:   "workflow",
	WorkflowError:           "workflow",

	BeforeStateRead:  "state",
	AfterStateRead:   "state",
	BeforeStateWrite: "state",
	AfterStateWrite:  "state",
	StateConflict:    "state",
	StateMigration:   "state",

	SessionStart:      "session",
	SessionEnd:        "session",
	SessionCheckpoint: "session",
	SessionSave:       "session",
	SessionRestore:    "session",
}

// Custom returns the escape-hatch point for name.
func Custom(name string) Point {
	return Point(CustomPrefix + name)
}

// IsCustom reports whether p was created with Custom.
func (p Point) IsCustom() bool {
	return strings.HasPrefix(string(p), CustomPrefix) && len(p) > len(CustomPrefix)
}

// IsBuiltin reports whether p is one of the predefined points.
func (p Point) IsBuiltin() bool {
	_, ok := builtinPoints[p]
	return ok
}

// Valid reports whether p may be used as a registry key.
func (p Point) Valid() bool {
	return p.IsBuiltin() || p.IsCustom()
}

// Subject returns the subsystem the point belongs to: system, agent, tool,
// workflow, state, session or custom.
func (p Point) Subject() string {
	if s, ok := builtinPoints[p]; ok {
		return s
	}
	return "custom"
}

// CustomName returns the name passed to Custom, or "" for builtin points.
func (p Point) CustomName() string {
	if !p.IsCustom() {
		return ""
	}
	return string(p)[len(CustomPrefix):]
}

// String returns the point name.
func (p Point) String() string {
	return string(p)
}

// ParsePoint resolves a point name as written by guest scripts and
// configuration. Builtin names are matched exactly or case-insensitively;
// "Custom:x" and "custom:x" produce Custom("x").
func ParsePoint(name string) (Point, error) {
	p := Point(name)
	if p.IsBuiltin() {
		return p, nil
	}
	if len(name) > len(CustomPrefix) && strings.EqualFold(name[:len(CustomPrefix)], CustomPrefix) {
		return Custom(name[len(CustomPrefix):]), nil
	}
	for bp := range builtinPoints {
		if strings.EqualFold(string(bp), name) {
			return bp, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPoint, name)
}

// Points returns every builtin point.
func Points() []Point {
	out := make([]Point, 0, len(builtinPoints))
	for p := range builtinPoints {
		out = append(out, p)
	}
	return out
}
