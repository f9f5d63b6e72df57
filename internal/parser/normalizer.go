package parser

import (
	"strings"
	"unicode"
)

// Normalize 清洗文本：小写、空白折叠为单个空格、去掉非ASCII字母数字字符、去首尾空格。
// 结果满足 Normalize(Normalize(x)) == Normalize(x)。
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lowered := strings.ToLower(text)

	var sb strings.Builder
	sb.Grow(len(lowered))
	pendingSpace := false
	for _, r := range lowered {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case isASCIIAlnum(r):
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteRune(r)
		}
		// 其余字符直接丢弃，前后的空白合并为一个
	}
	return sb.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
