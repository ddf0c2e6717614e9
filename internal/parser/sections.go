package parser

import (
	"strings"

	"resume-insight-go/internal/types"
)

// 常见简历章节标题关键词，中英文各覆盖一遍
var sectionKeywords = []string{
	"教育经历", "教育背景", "工作经历", "工作经验", "项目经历", "项目经验",
	"实习经历", "专业技能", "技能", "自我评价", "个人总结", "获奖情况", "证书",
	"education", "experience", "work experience", "projects", "project experience",
	"internship", "skills", "summary", "certifications", "awards",
}

// isSectionHeading 判断一行是否像章节标题：短、命中关键词
func isSectionHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len([]rune(trimmed)) > 30 {
		return false
	}
	lower := strings.ToLower(trimmed)
	lower = strings.Trim(lower, ":： 　")
	for _, kw := range sectionKeywords {
		if lower == kw || strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// SplitSections 按章节标题启发式切分简历文本。
// 标题之前的内容归入序号0的"基本信息"章节。
// 切分失败时返回单章节（整个文本），保证下游总有可用的章节索引。
func SplitSections(text string) []types.DocumentSection {
	lines := strings.Split(text, "\n")

	var sections []types.DocumentSection
	currentTitle := "基本信息"
	var currentLines []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if content == "" && len(sections) == 0 && currentTitle == "基本信息" {
			// 文首没有正文时不产生空的基本信息章节
			return
		}
		sections = append(sections, types.DocumentSection{
			Index:   len(sections),
			Title:   currentTitle,
			Content: content,
		})
	}

	for _, line := range lines {
		if isSectionHeading(line) {
			flush()
			currentTitle = strings.TrimSpace(line)
			currentLines = currentLines[:0]
			continue
		}
		currentLines = append(currentLines, line)
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, types.DocumentSection{
			Index:   0,
			Title:   "全文",
			Content: strings.TrimSpace(text),
		})
	}

	return sections
}
