package matching

import (
	"sort"
	"strings"

	"resume-insight-go/pkg/utils"
)

// Fingerprint 计算简历内容指纹：解析文本加上排序后的求职偏好做MD5。
// 文本或偏好任一变化都会产生新指纹，从而使旧的匹配缓存自然失效。
func Fingerprint(parsedText string, preferences map[string]string) string {
	var sb strings.Builder
	sb.WriteString(parsedText)

	if len(preferences) > 0 {
		keys := make([]string, 0, len(preferences))
		for k := range preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("\n")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(preferences[k])
		}
	}

	return utils.CalculateMD5([]byte(sb.String()))
}
