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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/heddle/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "heddle",
	Short:   "Heddle - Anthropic-compatible proxy for AWS Bedrock",
	Long:    `Heddle exposes the Anthropic Messages API over AWS Bedrock Converse, with Docker-sandboxed programmatic tool calling and standalone code execution.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./heddle.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("port", 8000, "HTTP server port")

	// Upstream flags
	rootCmd.PersistentFlags().String("aws-region", "us-west-2", "AWS region for Bedrock")
	rootCmd.PersistentFlags().String("aws-profile", "", "AWS profile name from ~/.aws/config")

	// Orchestrator flags
	rootCmd.PersistentFlags().Bool("ptc", false, "Enable programmatic tool calling")
	rootCmd.PersistentFlags().Bool("code-execution", false, "Enable standalone code execution")
	rootCmd.PersistentFlags().String("docker-host", "", "Docker daemon host (default: environment)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))

	_ = viper.BindPFlag("aws_region", rootCmd.PersistentFlags().Lookup("aws-region"))
	_ = viper.BindPFlag("aws_profile", rootCmd.PersistentFlags().Lookup("aws-profile"))

	_ = viper.BindPFlag("enable_programmatic_tool_calling", rootCmd.PersistentFlags().Lookup("ptc"))
	_ = viper.BindPFlag("enable_standalone_code_execution", rootCmd.PersistentFlags().Lookup("code-execution"))
	_ = viper.BindPFlag("docker_host", rootCmd.PersistentFlags().Lookup("docker-host"))

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
