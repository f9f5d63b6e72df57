package tracing

import "strings"

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxStatementLength SQL 语句写入 span 的最大长度
	MaxStatementLength = 500

	// MaxQueryLength 检索文本写入 span/日志 的最大长度
	MaxQueryLength = 120
)

// 需要掩码处理的属性名关键字
var maskPIIKeywords = []string{
	"email", "phone", "password", "secret", "token", "api_key", "name", "姓名", "address", "地址",
}

// SafeAttributeValue 敏感属性做掩码，其余按 maxLength 截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range maskPIIKeywords {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 保留首尾字符，中间用*替换
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	length := len(runes)
	switch {
	case length <= 1:
		return "*"
	case length == 2:
		return string(runes[0]) + "*"
	case length <= 4:
		return string(runes[0]) + strings.Repeat("*", length-2) + string(runes[length-1])
	}
	return string(runes[:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
}

// TruncateString 截断字符串，保留前后两段，中间用...连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeQuery 检索文本只保留摘要
func SafeQuery(q string) string {
	return TruncateString(q, MaxQueryLength)
}
