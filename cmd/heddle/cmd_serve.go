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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/heddle/internal/log"
	"github.com/teradata-labs/heddle/internal/version"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/codexec"
	"github.com/teradata-labs/heddle/pkg/modelmap"
	"github.com/teradata-labs/heddle/pkg/ptc"
	"github.com/teradata-labs/heddle/pkg/sandbox"
	"github.com/teradata-labs/heddle/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Heddle HTTP server",
	Long: `Start the Anthropic-compatible HTTP server over AWS Bedrock.

The server will:
- Resolve model ids through the mapping table (hot-reloaded if file-backed)
- Proxy /v1/messages to Bedrock Converse and ConverseStream
- Run programmatic tool calling and standalone code execution in Docker
  sandboxes (if enabled)

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := log.New(config.LogLevel, config.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting heddle",
		zap.String("version", version.Get()),
		zap.String("region", config.AWSRegion),
		zap.Bool("ptc", config.EnablePTC),
		zap.Bool("standalone_code_execution", config.EnableStandalone))

	resolver, err := modelmap.New(modelmap.Config{
		Overrides:    config.DefaultModelMapping,
		OverridePath: config.ModelMappingFile,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("building model resolver: %w", err)
	}
	defer func() { _ = resolver.Close() }()

	translator := bedrock.NewTranslator(resolver, bedrock.Options{
		PromptCachingEnabled:   config.PromptCachingEnabled,
		EnableToolUse:          config.EnableToolUse,
		EnableExtendedThinking: config.EnableExtendedThinking,
		EnableDocumentSupport:  config.EnableDocumentSupport,
	})

	client, err := bedrock.NewClient(bedrock.Config{
		Region:          config.AWSRegion,
		AccessKeyID:     config.AWSAccessKeyID,
		SecretAccessKey: config.AWSSecretAccessKey,
		SessionToken:    config.AWSSessionToken,
		Profile:         config.AWSProfile,
		Timeout:         time.Duration(config.BedrockTimeout) * time.Second,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("building bedrock client: %w", err)
	}

	srvCfg := server.Config{
		Addr:             fmt.Sprintf("%s:%d", config.Host, config.Port),
		Client:           client,
		Translator:       translator,
		StreamingTimeout: time.Duration(config.StreamingTimeout) * time.Second,
		Logger:           logger,
	}

	var stores []*sandbox.Store
	if config.EnablePTC || config.EnableStandalone {
		driver, err := sandbox.NewDriver(cmd.Context(), sandbox.DriverConfig{
			DockerHost:      config.DockerHost,
			Image:           config.PTCSandboxImage,
			MemoryLimit:     config.PTCMemoryLimit,
			CPULimit:        config.PTCCPULimit,
			NetworkDisabled: config.PTCNetworkDisabled,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("building docker driver: %w", err)
		}
		srvCfg.Driver = driver

		executor := sandbox.NewExecutor(
			time.Duration(config.ToolCallBatchWindowMS)*time.Millisecond,
			time.Duration(config.PTCExecutionTimeout)*time.Second,
			logger,
		)
		sessionTimeout := time.Duration(config.PTCSessionTimeout) * time.Second
		cleanupInterval := time.Duration(config.CleanupInterval) * time.Second

		if config.EnablePTC {
			store := sandbox.NewStore(sandbox.StoreConfig{
				Driver:          driver,
				Runner:          sandbox.RunnerPTC,
				SessionTimeout:  sessionTimeout,
				CleanupInterval: cleanupInterval,
				Logger:          logger,
			})
			stores = append(stores, store)
			srvCfg.PTC = ptc.NewService(ptc.Config{
				Upstream:   client,
				Translator: translator,
				Store:      store,
				Executor:   executor,
				Logger:     logger,
			})
		}
		if config.EnableStandalone {
			store := sandbox.NewStore(sandbox.StoreConfig{
				Driver:          driver,
				Runner:          sandbox.RunnerStandalone,
				SessionTimeout:  sessionTimeout,
				CleanupInterval: cleanupInterval,
				Logger:          logger,
			})
			stores = append(stores, store)
			srvCfg.Standalone = codexec.NewService(codexec.Config{
				Upstream:    client,
				Translator:  translator,
				Store:       store,
				Executor:    executor,
				BashTimeout: time.Duration(config.StandaloneBashTimeout) * time.Second,
				Logger:      logger,
			})
		}
	}
	srvCfg.Stores = stores

	srv := server.New(srvCfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	for _, store := range stores {
		store.Stop()
		store.CloseAll()
	}
	if err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
