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

// Package audit archives the untruncated output of a tier attempt to S3,
// keyed by task_id, when the registry's own response_preview column has
// already been capped to 500 chars. Archival is optional and best-effort:
// a failure here never affects pipeline correctness or the returned Result.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver writes full-response audit objects to S3. A nil *Archiver is
// valid and makes Archive a no-op, so callers can wire it unconditionally
// and let AUDIT_ARCHIVE_BUCKET being unset disable the feature.
type Archiver struct {
	client *s3.Client
	bucket string
	logger *log.Logger
}

// New constructs an Archiver against the given bucket. Returns nil (not an
// error) when bucket is empty, so callers can treat the feature as
// disabled without special-casing every call site.
func New(ctx context.Context, bucket string, logger *log.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[audit/archive] ", log.LstdFlags)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger,
	}, nil
}

// Record is the shape persisted to S3 for one archived attempt.
type Record struct {
	TaskID    string      `json:"task_id"`
	Tier      string      `json:"tier"`
	EventType string      `json:"event_type"`
	Output    interface{} `json:"output"`
	CreatedAt time.Time   `json:"created_at"`
}

func objectKey(taskID string, seq int) string {
	return fmt.Sprintf("tasks/%s/%d.json", taskID, seq)
}

// Archive uploads the untruncated output for one attempt. Failures are
// logged, never returned, matching the registry's own best-effort write
// semantics for audit data.
func (a *Archiver) Archive(ctx context.Context, taskID, tier, eventType string, seq int, output interface{}) {
	if a == nil {
		return
	}

	record := Record{
		TaskID:    taskID,
		Tier:      tier,
		EventType: eventType,
		Output:    output,
		CreatedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(record)
	if err != nil {
		a.logger.Printf("archive marshal failed for task %s: %v", taskID, err)
		return
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey(taskID, seq)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.logger.Printf("archive upload failed for task %s: %v", taskID, err)
	}
}
