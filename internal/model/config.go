package model

import (
	"fmt"
	"strings"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Notify    NotifyConfig    `yaml:"notify"`
	Trace     TraceConfig     `yaml:"trace"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Session   SessionConfig   `yaml:"session"`
}

type TransportConfig struct {
	Network         string `yaml:"network"` // "unix" or "tcp"
	Address         string `yaml:"address"`
	DialTimeoutSec  int    `yaml:"dial_timeout_sec"`
	SendQueueSize   int    `yaml:"send_queue_size"`
	MaxFrameBytes   int    `yaml:"max_frame_bytes"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"` // desktop notifications for alerts
}

type TraceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

type WorkflowConfig struct {
	DocsRoot         string `yaml:"docs_root"`
	RequirementsFile string `yaml:"requirements_file"`
	DesignFile       string `yaml:"design_file"`
	TaskListFile     string `yaml:"task_list_file"`
	WatchDocs        bool   `yaml:"watch_docs"`
	WatchDebounceMs  int    `yaml:"watch_debounce_ms"`
}

type SessionConfig struct {
	InboxSize int `yaml:"inbox_size"`
	BusBuffer int `yaml:"bus_buffer"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Network:         "unix",
			Address:         ".agentsync/agent.sock",
			DialTimeoutSec:  10,
			SendQueueSize:   64,
			MaxFrameBytes:   10 * 1024 * 1024,
			WriteTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Trace: TraceConfig{
			Path:      ".agentsync/logs/trace.jsonl",
			MaxSizeMB: 100,
		},
		Workflow: WorkflowConfig{
			DocsRoot:         ".agentsync/docs",
			RequirementsFile: "requirements.md",
			DesignFile:       "design.md",
			TaskListFile:     "tasks.md",
			WatchDocs:        true,
			WatchDebounceMs:  200,
		},
		Session: SessionConfig{
			InboxSize: 256,
			BusBuffer: 100,
		},
	}
}

// Validate rejects configurations the session cannot run with.
func (c Config) Validate() error {
	switch c.Transport.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("transport.network must be unix or tcp, got %q", c.Transport.Network)
	}
	if strings.TrimSpace(c.Transport.Address) == "" {
		return fmt.Errorf("transport.address is required")
	}
	if c.Transport.SendQueueSize <= 0 {
		return fmt.Errorf("transport.send_queue_size must be positive, got %d", c.Transport.SendQueueSize)
	}
	if c.Transport.MaxFrameBytes <= 0 {
		return fmt.Errorf("transport.max_frame_bytes must be positive, got %d", c.Transport.MaxFrameBytes)
	}
	if c.Trace.Enabled && c.Trace.Path == "" {
		return fmt.Errorf("trace.path is required when trace is enabled")
	}
	if c.Session.InboxSize <= 0 {
		return fmt.Errorf("session.inbox_size must be positive, got %d", c.Session.InboxSize)
	}
	return nil
}

// DocumentFile returns the file name that holds kind inside a task's docs directory.
func (w WorkflowConfig) DocumentFile(kind DocumentKind) string {
	switch kind {
	case DocRequirements:
		return w.RequirementsFile
	case DocDesign:
		return w.DesignFile
	case DocTaskList:
		return w.TaskListFile
	}
	return ""
}
