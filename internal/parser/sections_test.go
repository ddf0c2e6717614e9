package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitSectionsChineseResume 中文简历按章节标题切分
func TestSplitSectionsChineseResume(t *testing.T) {
	text := `张三 13800138000 zhangsan@example.com

教育经历
2015-2019 某大学 计算机科学与技术 本科

工作经历
2019-至今 某公司 后端开发工程师
负责订单系统的设计与开发

专业技能
Go、MySQL、Redis、Kafka`

	sections := SplitSections(text)
	require.Len(t, sections, 4)

	assert.Equal(t, 0, sections[0].Index)
	assert.Equal(t, "基本信息", sections[0].Title)
	assert.Contains(t, sections[0].Content, "张三")

	assert.Equal(t, "教育经历", sections[1].Title)
	assert.Contains(t, sections[1].Content, "某大学")

	assert.Equal(t, "工作经历", sections[2].Title)
	assert.Contains(t, sections[2].Content, "订单系统")

	assert.Equal(t, "专业技能", sections[3].Title)
	assert.Contains(t, sections[3].Content, "Redis")
}

// TestSplitSectionsEnglishResume 英文标题同样可以识别，大小写不敏感
func TestSplitSectionsEnglishResume(t *testing.T) {
	text := `John Doe, Backend Engineer

EDUCATION
B.S. Computer Science, 2019

Work Experience
Backend engineer at Example Corp

Skills: Go, PostgreSQL`

	sections := SplitSections(text)
	require.Len(t, sections, 4)
	assert.Equal(t, "基本信息", sections[0].Title)
	assert.Equal(t, "EDUCATION", sections[1].Title)
	assert.Equal(t, "Work Experience", sections[2].Title)
	assert.Equal(t, "Skills: Go, PostgreSQL", sections[3].Title)
}

// TestSplitSectionsNoHeadings 没有可识别标题时退化为单个全文章节
func TestSplitSectionsNoHeadings(t *testing.T) {
	text := "这是一段没有任何章节结构的纯文本简历内容。"

	sections := SplitSections(text)
	require.Len(t, sections, 1)
	assert.Equal(t, 0, sections[0].Index)
	assert.Equal(t, "基本信息", sections[0].Title)
	assert.Equal(t, text, sections[0].Content)
}

// TestSplitSectionsHeadingFirstLine 文首就是标题时不产生空的基本信息章节
func TestSplitSectionsHeadingFirstLine(t *testing.T) {
	text := `工作经历
2019-至今 某公司`

	sections := SplitSections(text)
	require.Len(t, sections, 1)
	assert.Equal(t, 0, sections[0].Index)
	assert.Equal(t, "工作经历", sections[0].Title)
	assert.Equal(t, "2019-至今 某公司", sections[0].Content)
}

// TestSplitSectionsEmptyText 空文本仍返回一个章节兜底
func TestSplitSectionsEmptyText(t *testing.T) {
	sections := SplitSections("")
	require.Len(t, sections, 1)
	assert.Equal(t, "全文", sections[0].Title)
	assert.Equal(t, "", sections[0].Content)
}

// TestIsSectionHeading 标题判定：短行命中关键词，长句与普通正文不命中
func TestIsSectionHeading(t *testing.T) {
	assert.True(t, isSectionHeading("教育经历"))
	assert.True(t, isSectionHeading("  工作经验：  "))
	assert.True(t, isSectionHeading("SKILLS"))
	assert.False(t, isSectionHeading("我在项目中负责教育经历模块的数据迁移工作，周期为三个月，覆盖了全部历史数据"))
	assert.False(t, isSectionHeading("负责订单系统的设计与开发"))
	assert.False(t, isSectionHeading(""))
}
