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
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockctl "github.com/aws/aws-sdk-go-v2/service/bedrock"
	ctltypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// ListModels returns the foundation-model catalog filtered to models that
// can produce text output.
func (c *Client) ListModels(ctx context.Context) ([]anthropic.ModelInfo, error) {
	out, err := c.control.ListFoundationModels(ctx, &bedrockctl.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing foundation models: %w", err)
	}

	var models []anthropic.ModelInfo
	for _, m := range out.ModelSummaries {
		if !outputsText(m.OutputModalities) {
			continue
		}
		models = append(models, anthropic.ModelInfo{
			ID:          aws.ToString(m.ModelId),
			Type:        "model",
			DisplayName: aws.ToString(m.ModelName),
		})
	}
	return models, nil
}

func outputsText(modalities []ctltypes.ModelModality) bool {
	for _, m := range modalities {
		if m == ctltypes.ModelModalityText {
			return true
		}
	}
	return false
}
