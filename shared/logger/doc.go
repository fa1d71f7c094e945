// Copyright 2025 AxonFlow
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

/*
Package logger provides structured JSON logging for the router gateway's
components.

# Overview

The logger package writes one JSON object per entry through the standard
library's log package (stderr unless log.SetOutput redirects it), making
logs easily consumable by CloudWatch, ELK stack, or other log aggregation
systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (router, etc.)
  - Instance ID and host name
  - Task ID (omitted when empty)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("router")

Log messages with task context:

	log.Info("task-123", "Routing task", map[string]interface{}{
	    "tier": "local",
	})

Log errors with status codes:

	log.ErrorWithCode("task-123", "Request failed", 500, err, map[string]interface{}{
	    "endpoint": "/run",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("task-123", "Task completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Each entry is a single line of JSON, prefixed by the log package's
standard date/time flags:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"router","instance_id":"i-abc123","host":"router-xyz",
	 "task_id":"task-123","message":"Routing task","fields":{"tier":"local"}}

# Environment Variables

The logger reads this environment variable:

  - INSTANCE_ID: Deployment instance identifier ("unknown" when unset)

The host name comes from os.Hostname ("unknown" if it fails).

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
