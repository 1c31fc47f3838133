package composer

import (
	"fmt"
	"strings"
)

// BuildInstruction - 배경/캐릭터 합성 지시문 생성
func BuildInstruction(styleDescriptor, subject string) string {
	return fmt.Sprintf(
		"Use the first image as the background, and place the character from the second image in the middle of it. The final image should be in %s, with a %s theme.",
		strings.TrimSpace(styleDescriptor),
		strings.TrimSpace(subject),
	)
}
