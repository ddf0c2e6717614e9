package analyzer

import "strings"

// normalizeRecommendation 归一化建议文本用于去重比较：
// 小写、去首尾空白、折叠内部空白、去结尾标点
func normalizeRecommendation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".。!！;；")
	return s
}

// tokenOverlap 计算两段归一化文本的词集合重叠率（相对较小集合）
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}

	common := 0
	seen := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if seen[t] {
			continue
		}
		seen[t] = true
		if setA[t] {
			common++
		}
	}

	smaller := len(setA)
	if len(seen) < smaller {
		smaller = len(seen)
	}
	return float64(common) / float64(smaller)
}

// isDuplicateRecommendation 判断候选建议是否与已保留的建议重复。
// 归一化后完全相等，或词重叠率达到0.8以上，视为重复。
func isDuplicateRecommendation(candidate string, kept []string) bool {
	normCandidate := normalizeRecommendation(candidate)
	for _, existing := range kept {
		normExisting := normalizeRecommendation(existing)
		if normCandidate == normExisting {
			return true
		}
		if tokenOverlap(normCandidate, normExisting) >= 0.8 {
			return true
		}
	}
	return false
}

// mergeRecommendations 合并内容轨道与视觉轨道的建议。
// 内容建议优先保留，随后补充视觉建议，全程去重，总数不超过limit。
func mergeRecommendations(contentRecs, visualRecs []string, limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	merged := make([]string, 0, limit)

	appendIfRoom := func(rec string) {
		if len(merged) >= limit {
			return
		}
		if strings.TrimSpace(rec) == "" {
			return
		}
		if isDuplicateRecommendation(rec, merged) {
			return
		}
		merged = append(merged, rec)
	}

	for _, rec := range contentRecs {
		appendIfRoom(rec)
	}
	for _, rec := range visualRecs {
		appendIfRoom(rec)
	}

	return merged
}
