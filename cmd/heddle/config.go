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
package main

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

// DefaultConfigFileName is the name of the config file
const DefaultConfigFileName = "heddle"

// Config holds all configuration for the Heddle server.
// Priority: CLI flags > config file > env vars > defaults. Keys are flat so
// HEDDLE_AWS_REGION style environment variables map directly.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Upstream
	AWSRegion          string `mapstructure:"aws_region"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSSessionToken    string `mapstructure:"aws_session_token"`
	AWSProfile         string `mapstructure:"aws_profile"`
	BedrockTimeout     int    `mapstructure:"bedrock_timeout"`   // seconds
	StreamingTimeout   int    `mapstructure:"streaming_timeout"` // seconds

	// Model resolution
	DefaultModelMapping map[string]string `mapstructure:"default_model_mapping"`
	ModelMappingFile    string            `mapstructure:"model_mapping_file"`

	// Translation features
	PromptCachingEnabled   bool `mapstructure:"prompt_caching_enabled"`
	EnableToolUse          bool `mapstructure:"enable_tool_use"`
	EnableExtendedThinking bool `mapstructure:"enable_extended_thinking"`
	EnableDocumentSupport  bool `mapstructure:"enable_document_support"`

	// Programmatic tool calling
	EnablePTC             bool    `mapstructure:"enable_programmatic_tool_calling"`
	PTCSandboxImage       string  `mapstructure:"ptc_sandbox_image"`
	PTCMemoryLimit        int64   `mapstructure:"ptc_memory_limit"` // bytes
	PTCCPULimit           float64 `mapstructure:"ptc_cpu_limit"`
	PTCNetworkDisabled    bool    `mapstructure:"ptc_network_disabled"`
	PTCExecutionTimeout   int     `mapstructure:"ptc_execution_timeout"` // seconds
	PTCSessionTimeout     int     `mapstructure:"ptc_session_timeout"`   // seconds
	CleanupInterval       int     `mapstructure:"cleanup_interval"`      // seconds
	ToolCallBatchWindowMS int     `mapstructure:"tool_call_batch_window_ms"`

	// Standalone code execution
	EnableStandalone      bool `mapstructure:"enable_standalone_code_execution"`
	StandaloneBashTimeout int  `mapstructure:"standalone_bash_timeout"` // seconds

	// Docker daemon endpoint (default: DOCKER_HOST or the platform socket)
	DockerHost string `mapstructure:"docker_host"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/heddle/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("HEDDLE")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8000)

	viper.SetDefault("aws_region", "us-west-2")
	viper.SetDefault("bedrock_timeout", 1800)
	viper.SetDefault("streaming_timeout", 1800)

	viper.SetDefault("prompt_caching_enabled", false)
	viper.SetDefault("enable_tool_use", true)
	viper.SetDefault("enable_extended_thinking", true)
	viper.SetDefault("enable_document_support", true)

	viper.SetDefault("enable_programmatic_tool_calling", false)
	viper.SetDefault("ptc_sandbox_image", sandbox.DefaultImage)
	viper.SetDefault("ptc_memory_limit", int64(sandbox.DefaultMemoryLimit))
	viper.SetDefault("ptc_cpu_limit", sandbox.DefaultCPULimit)
	viper.SetDefault("ptc_network_disabled", true)
	viper.SetDefault("ptc_execution_timeout", 300)
	viper.SetDefault("ptc_session_timeout", 270)
	viper.SetDefault("cleanup_interval", 60)
	viper.SetDefault("tool_call_batch_window_ms", 100)

	viper.SetDefault("enable_standalone_code_execution", false)
	viper.SetDefault("standalone_bash_timeout", 30)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
}
