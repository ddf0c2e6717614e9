package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// VisionModel 多模态模型接口：输入指令与一张图片，返回文本回答
type VisionModel interface {
	GenerateWithImage(ctx context.Context, prompt string, imagePNG []byte) (string, error)
}

// QwenVisionModel 通过OpenAI兼容API调用通义千问多模态模型(qwen-vl系列)。
// 图片以base64 data URI内联在消息内容中。
type QwenVisionModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
}

var _ VisionModel = (*QwenVisionModel)(nil)

// NewQwenVisionModel 创建多模态模型客户端
func NewQwenVisionModel(apiKey string, modelName string, apiURL string) (*QwenVisionModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = "qwen-vl-plus"
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = openAICompatibleQwenAPIURL
	}

	return &QwenVisionModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{},
	}, nil
}

// 多模态消息的内容分片
type visionContentPart struct {
	Type     string           `json:"type"` // "text" | "image_url"
	Text     string           `json:"text,omitempty"`
	ImageURL *visionImagePart `json:"image_url,omitempty"`
}

type visionImagePart struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

// GenerateWithImage 发送图文混合请求并返回模型的文本回答
func (v *QwenVisionModel) GenerateWithImage(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	if len(imagePNG) == 0 {
		return "", fmt.Errorf("图片内容不能为空")
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG)

	reqPayload := visionRequest{
		Model: v.modelName,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []visionContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &visionImagePart{URL: dataURI}},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+v.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp OpenAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return "", fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	if openAIResp.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("API 响应内容为空")
	}
	return *openAIResp.Choices[0].Message.Content, nil
}
