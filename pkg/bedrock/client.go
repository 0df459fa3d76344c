// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package bedrock adapts the Anthropic Messages schema to the AWS Bedrock
// Converse and ConverseStream APIs: request and response translation,
// streaming-event translation, token counting, and the model catalog.
package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	bedrockctl "github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"
)

// RuntimeAPI is the subset of the bedrockruntime client the proxy calls.
type RuntimeAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
	CountTokens(ctx context.Context, params *bedrockruntime.CountTokensInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.CountTokensOutput, error)
}

// ControlAPI is the subset of the bedrock control-plane client the proxy
// calls.
type ControlAPI interface {
	ListFoundationModels(ctx context.Context, params *bedrockctl.ListFoundationModelsInput, optFns ...func(*bedrockctl.Options)) (*bedrockctl.ListFoundationModelsOutput, error)
}

// Config holds configuration for the upstream client.
type Config struct {
	Region          string // Required: AWS region (e.g., us-east-1, us-west-2)
	AccessKeyID     string // Optional: if not using IAM role/profile
	SecretAccessKey string // Optional: if not using IAM role/profile
	SessionToken    string // Optional: for temporary credentials
	Profile         string // Optional: AWS profile name from ~/.aws/config

	// Timeout caps a single upstream call. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *zap.Logger
}

// Default upstream settings.
const (
	DefaultRegion  = "us-west-2"
	DefaultTimeout = 1800 * time.Second
)

// Client is the upstream adapter over Bedrock.
type Client struct {
	runtime RuntimeAPI
	control ControlAPI
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a Client from AWS configuration. Credentials resolve in
// order: explicit static keys, named profile, default chain.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	case cfg.Profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		runtime: bedrockruntime.NewFromConfig(awsCfg),
		control: bedrockctl.NewFromConfig(awsCfg),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// NewClientWithAPI builds a Client over caller-supplied API implementations.
// Used by tests.
func NewClientWithAPI(runtime RuntimeAPI, control ControlAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{runtime: runtime, control: control, timeout: DefaultTimeout, logger: logger}
}

// Invoke performs a non-streaming Converse call.
func (c *Client) Invoke(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}
	c.logger.Debug("converse completed",
		zap.String("model_id", aws.ToString(input.ModelId)),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}

// EventStream is the readable side of a ConverseStream call.
// *bedrockruntime.ConverseStreamEventStream satisfies it.
type EventStream interface {
	Events() <-chan bedrocktypes.ConverseStreamOutput
	Close() error
	Err() error
}

// InvokeStream performs a ConverseStream call. The caller owns the returned
// stream and must close it.
func (c *Client) InvokeStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (EventStream, error) {
	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream failed: %w", err)
	}
	return out.GetStream(), nil
}
