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

package router

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveSecretARN fetches a plain string secret (an API key) from AWS
// Secrets Manager. The secret is expected to hold a single string value,
// either as the raw SecretString or under a "value"/"api_key" JSON key.
func resolveSecretARN(ctx context.Context, arn string, logger *log.Logger) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", maskARN(arn), err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(arn))
	}

	logger.Printf("resolved API key from secret %s", maskARN(arn))
	return *out.SecretString, nil
}

func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// resolveAPIKey prefers a plain env var value; when empty and a secret ARN
// is configured, it falls back to Secrets Manager. Failures to reach
// Secrets Manager are logged and treated as "not configured" rather than
// fatal, since a tier going unconfigured is a normal degraded state.
func resolveAPIKey(ctx context.Context, plain, secretARN string, logger *log.Logger) string {
	if plain != "" {
		return plain
	}
	if secretARN == "" {
		return ""
	}
	value, err := resolveSecretARN(ctx, secretARN, logger)
	if err != nil {
		logger.Printf("warning: could not resolve secret %s: %v", maskARN(secretARN), err)
		return ""
	}
	return value
}
