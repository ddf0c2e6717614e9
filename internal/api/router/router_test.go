package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"

	"resume-insight-go/internal/query"
)

// TestWriteQueryErrorStatusMapping 查询层错误到HTTP状态码的映射
func TestWriteQueryErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"记录不存在", query.ErrEvaluationNotFound, consts.StatusNotFound},
		{"记录数据损坏", fmt.Errorf("%w: 缺少内容分析结果 (评估:eval-1)", query.ErrMalformedRecord), consts.StatusBadRequest},
		{"未知错误", errors.New("数据库连接失败"), consts.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := app.NewContext(16)
			writeQueryError(c, tc.err)
			assert.Equal(t, tc.want, c.Response.StatusCode())
		})
	}
}
