package model

import (
	"fmt"
	"strings"
)

// WorkflowPhase is one stage of the linear task workflow.
type WorkflowPhase string

const (
	PhaseIdle      WorkflowPhase = "idle"
	PhaseAnalyze   WorkflowPhase = "analyze"
	PhaseDesign    WorkflowPhase = "design"
	PhaseBreakdown WorkflowPhase = "breakdown"
	PhaseExecute   WorkflowPhase = "execute"
	PhaseComplete  WorkflowPhase = "complete"
)

// Phases lists every phase in workflow order.
var Phases = []WorkflowPhase{PhaseIdle, PhaseAnalyze, PhaseDesign, PhaseBreakdown, PhaseExecute, PhaseComplete}

// DocumentKind is an artifact a task may hold, at most one per kind.
type DocumentKind string

const (
	DocRequirements DocumentKind = "requirements"
	DocDesign       DocumentKind = "design"
	DocTaskList     DocumentKind = "taskList"
)

// idle → analyze → design → breakdown → execute → complete; complete has no successor.
var validWorkflowTransitions = map[WorkflowPhase]map[WorkflowPhase]bool{
	PhaseIdle:      {PhaseAnalyze: true},
	PhaseAnalyze:   {PhaseDesign: true},
	PhaseDesign:    {PhaseBreakdown: true},
	PhaseBreakdown: {PhaseExecute: true},
	PhaseExecute:   {PhaseComplete: true},
	PhaseComplete:  {},
}

var phaseDocuments = map[WorkflowPhase]DocumentKind{
	PhaseAnalyze:   DocRequirements,
	PhaseDesign:    DocDesign,
	PhaseBreakdown: DocTaskList,
}

var phasePrerequisites = map[WorkflowPhase][]DocumentKind{
	PhaseDesign:    {DocRequirements},
	PhaseBreakdown: {DocRequirements, DocDesign},
	PhaseExecute:   {DocRequirements, DocDesign, DocTaskList},
}

// IsValidTransition reports whether to is a successor of from.
func IsValidTransition(from, to WorkflowPhase) bool {
	return validWorkflowTransitions[from][to]
}

// NextPhase returns the single successor of p, or false for complete and unknown phases.
func NextPhase(p WorkflowPhase) (WorkflowPhase, bool) {
	for next := range validWorkflowTransitions[p] {
		return next, true
	}
	return "", false
}

func IsTerminalPhase(p WorkflowPhase) bool {
	return p == PhaseComplete
}

// RequiredDocumentFor returns the document a phase produces.
func RequiredDocumentFor(p WorkflowPhase) (DocumentKind, bool) {
	kind, ok := phaseDocuments[p]
	return kind, ok
}

// PrerequisiteDocuments returns the documents that must exist before entering p.
// The returned slice is a fresh copy.
func PrerequisiteDocuments(p WorkflowPhase) []DocumentKind {
	return append([]DocumentKind{}, phasePrerequisites[p]...)
}

// PhaseForDocument returns the phase that produces kind.
func PhaseForDocument(kind DocumentKind) (WorkflowPhase, bool) {
	for p, k := range phaseDocuments {
		if k == kind {
			return p, true
		}
	}
	return "", false
}

func ParsePhase(s string) (WorkflowPhase, error) {
	p := WorkflowPhase(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validWorkflowTransitions[p]; !ok {
		return "", fmt.Errorf("unknown workflow phase %q", s)
	}
	return p, nil
}

func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(strings.TrimSpace(s)) {
	case DocRequirements:
		return DocRequirements, nil
	case DocDesign:
		return DocDesign, nil
	case DocTaskList:
		return DocTaskList, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}
