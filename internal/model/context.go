package model

// TaskContext is the workflow state of one task.
type TaskContext struct {
	TaskID       string                  `yaml:"task_id"`
	TaskName     string                  `yaml:"task_name"`
	CurrentPhase WorkflowPhase           `yaml:"current_phase"`
	DocsPath     string                  `yaml:"docs_path"`
	Documents    map[DocumentKind]string `yaml:"documents"`
}

// NewTaskContext returns a context in the idle phase.
func NewTaskContext(taskID, name, docsPath string) *TaskContext {
	return &TaskContext{
		TaskID:       taskID,
		TaskName:     name,
		CurrentPhase: PhaseIdle,
		DocsPath:     docsPath,
		Documents:    make(map[DocumentKind]string),
	}
}

func (c *TaskContext) HasDocument(kind DocumentKind) bool {
	_, ok := c.Documents[kind]
	return ok
}

// MissingPrerequisites lists, in order, the prerequisite documents of p not yet present.
func (c *TaskContext) MissingPrerequisites(p WorkflowPhase) []DocumentKind {
	var missing []DocumentKind
	for _, kind := range PrerequisiteDocuments(p) {
		if !c.HasDocument(kind) {
			missing = append(missing, kind)
		}
	}
	return missing
}

func (c *TaskContext) Clone() *TaskContext {
	cp := *c
	cp.Documents = make(map[DocumentKind]string, len(c.Documents))
	for k, v := range c.Documents {
		cp.Documents[k] = v
	}
	return &cp
}
