// Package model defines the data types exchanged between the CDP channel,
// the ref registry, the snapshot builder, the differ, and the action
// orchestrator. Dynamic JSON shapes coming off the remote debugging
// protocol are normalized into these explicit record types at every
// boundary; unknown fields are ignored and absent-but-required fields map
// to the nearest error code rather than a zero value silently propagating.
package model

// NodeIdentity is the durable handle the registry stores for a ref. At
// least one of BackendNodeID or DOMPath must be non-empty.
type NodeIdentity struct {
	AXNodeID      string
	BackendNodeID int64
	DOMPath       string
	Stale         bool
}

// InteractiveRoles is the fixed set of accessibility roles the snapshot
// builder treats as interactive.
var InteractiveRoles = map[string]bool{
	"button":     true,
	"link":       true,
	"textbox":    true,
	"combobox":   true,
	"checkbox":   true,
	"radio":      true,
	"menuitem":   true,
	"tab":        true,
	"switch":     true,
	"slider":     true,
	"spinbutton": true,
	"searchbox":  true,
}

// PropertyKeys is the union of properties the snapshot builder projects
// from the accessibility tree when present.
var PropertyKeys = []string{"focused", "checked", "selected", "expanded", "disabled", "required", "value"}

// stateKeys is the subset of PropertyKeys rendered as compact-line state
// tokens; "value" is rendered separately via the value:"…" suffix.
var stateKeys = []string{"focused", "checked", "selected", "expanded", "disabled", "required"}

// SnapshotElement is one interactive element captured by the snapshot
// builder.
type SnapshotElement struct {
	Ref         string
	AXNodeID    string
	DOMPath     string
	Role        string
	Name        string
	CompactLine string
	Properties  map[string]string
}

// PageInfo describes the page a snapshot was taken from.
type PageInfo struct {
	URL      string
	Title    string
	Viewport Viewport
}

// Viewport holds integer viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// SnapshotData is the element set plus page context extracted by the
// snapshot builder, in document order.
type SnapshotData struct {
	Elements []SnapshotElement
	Page     PageInfo
}

// ConsequenceKind enumerates the tagged variants of a Consequence.
type ConsequenceKind string

const (
	ConsequenceAppeared    ConsequenceKind = "appeared"
	ConsequenceDisappeared ConsequenceKind = "disappeared"
	ConsequenceChanged     ConsequenceKind = "changed"
	ConsequenceNetwork     ConsequenceKind = "network"
	ConsequenceDOMChurn    ConsequenceKind = "dom-churn"
	ConsequenceLayoutShift ConsequenceKind = "layout-shift"
)

// Consequence is one observation the differ (or the orchestrator, for
// scroll's churn/layout probes) attaches to an action result.
type Consequence struct {
	Kind       ConsequenceKind
	Desc       string
	Ref        string
	ChurnCount int
	CLS        float64
	ShiftCount int
}

// NetworkEvent tracks one Fetch/XHR request observed during a stability
// wait. FinishedAt, Status, and DurationMs are zero until the request
// completes.
type NetworkEvent struct {
	RequestID  string
	Method     string
	URL        string
	StartedAt  float64
	FinishedAt float64
	Status     int
	DurationMs float64
	Finished   bool
}

// ErrorDetail is the wire-level error shape carried in result envelopes.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionResult is the stable envelope returned by every mutating tool.
type ActionResult struct {
	Version                int           `json:"version"`
	Action                  string        `json:"action"`
	OK                      bool          `json:"ok"`
	Page                    PageInfo      `json:"page"`
	Consequences            []Consequence `json:"consequences"`
	NewInteractiveElements  []string      `json:"newInteractiveElements"`
	Errors                  []ErrorDetail `json:"errors"`
	Warnings                []string      `json:"warnings"`
	ResolvedBy              string        `json:"resolvedBy,omitempty"`
	TimingMs                int64         `json:"timingMs"`
}

// SnapshotResult is the stable envelope returned by every observation tool.
type SnapshotResult struct {
	Version  int           `json:"version"`
	OK       bool          `json:"ok"`
	Page     PageInfo      `json:"page"`
	Elements []string      `json:"elements"`
	Errors   []ErrorDetail `json:"errors"`
	TimingMs int64         `json:"timingMs"`
}

// SnapshotDataToResult renders a SnapshotData into the wire-level
// SnapshotResult. Elements are always the compact-line encoding, so this
// function is idempotent: calling it twice on the same SnapshotData
// yields the same Elements slice.
func SnapshotDataToResult(data SnapshotData, timingMs int64) SnapshotResult {
	lines := make([]string, len(data.Elements))
	for i, e := range data.Elements {
		lines[i] = e.CompactLine
	}
	return SnapshotResult{
		Version:  1,
		OK:       true,
		Page:     data.Page,
		Elements: lines,
		Errors:   nil,
		TimingMs: timingMs,
	}
}
