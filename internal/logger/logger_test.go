package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCtxFallsBackToGlobalLogger 上下文中没有logger时回退到全局实例，日志不应丢失
func TestCtxFallsBackToGlobalLogger(t *testing.T) {
	Init(Config{Level: "info", Format: "json"})

	l := Ctx(context.Background())
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel(), "无上下文logger时不应返回禁用的logger")
}

// TestCtxUsesContextLogger 上下文中已有logger时优先使用它
func TestCtxUsesContextLogger(t *testing.T) {
	Init(Config{Level: "info", Format: "json"})

	var buf bytes.Buffer
	scoped := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()
	ctx := scoped.WithContext(context.Background())

	Ctx(ctx).Info().Msg("处理请求")
	assert.Contains(t, buf.String(), "req-1")
}

// TestWithContextRoundTrip WithContext注入的logger能被Ctx取回
func TestWithContextRoundTrip(t *testing.T) {
	Init(Config{Level: "debug", Format: "json"})

	ctx := WithContext(context.Background())
	l := Ctx(ctx)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}
