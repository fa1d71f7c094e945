// Copyright 2025 CascadeFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the structured JSON logging used across the
// gateway's components, keyed by task rather than by request so a task's
// full routing/execution trail can be grepped out of the log output by
// task_id. Entries are written through the standard library's log package,
// so they go wherever log.SetOutput points (stderr by default).
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger emits structured JSON log entries for a single component.
type Logger struct {
	Component  string
	InstanceID string
	Host       string
}

// Entry is the JSON shape written to the log output for every log call.
type Entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Host       string                 `json:"host"`
	TaskID     string                 `json:"task_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Logger{Component: component, InstanceID: instanceID, Host: host}
}

// Log writes a structured entry through the standard library logger.
func (l *Logger) Log(level Level, taskID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Host:       l.Host,
		TaskID:     taskID,
		Message:    message,
		Fields:     fields,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(raw))
}

func (l *Logger) Info(taskID, message string, fields map[string]interface{}) {
	l.Log(INFO, taskID, message, fields)
}

func (l *Logger) Error(taskID, message string, fields map[string]interface{}) {
	l.Log(ERROR, taskID, message, fields)
}

func (l *Logger) Warn(taskID, message string, fields map[string]interface{}) {
	l.Log(WARN, taskID, message, fields)
}

func (l *Logger) Debug(taskID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, taskID, message, fields)
}

// InfoWithDuration logs an info message annotated with a duration in
// milliseconds, used for request/task completion logging.
func (l *Logger) InfoWithDuration(taskID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(taskID, message, fields)
}

// ErrorWithCode logs an error annotated with an HTTP status code.
func (l *Logger) ErrorWithCode(taskID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(taskID, message, fields)
}
