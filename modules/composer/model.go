package composer

import (
	"time"

	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/style"
)

// SubjectSuggestions - 주제 입력 화면의 추천 목록
var SubjectSuggestions = []string{"Sci-Fi", "Holiday", "Birthday", "Halloween", "Beach Day", "Outer Space"}

// PickerPage - 배경/캐릭터 선택 화면
type PickerPage struct {
	Kind         string
	Images       []model.Image
	BackgroundID string
}

// SubjectPage - 주제 입력 화면
type SubjectPage struct {
	BackgroundID string
	CharacterID  string
	Subject      string
	Suggestions  []string
	MaxLength    int
}

// StylePage - 스타일 선택 화면
type StylePage struct {
	BackgroundID string
	CharacterID  string
	Subject      string
	Styles       []style.Entry
}

// GenerationPage - generation 상태 화면
type GenerationPage struct {
	Generation  *model.Generation
	Message     string
	Cancellable bool
}

// HistoryPage - generation 목록 화면
type HistoryPage struct {
	Generations []model.Generation
}

// ErrorPage - 오류 화면
type ErrorPage struct {
	Status  int
	Message string
}

// StatusResponse - GET /api/generations/{id} 응답
type StatusResponse struct {
	GenerationID  string     `json:"generation_id"`
	Status        string     `json:"status"`
	Subject       string     `json:"subject"`
	Style         string     `json:"style"`
	ResultImageID string     `json:"result_image_id,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewStatusResponse - model.Generation → API 응답
func NewStatusResponse(g *model.Generation) StatusResponse {
	resp := StatusResponse{
		GenerationID: g.GenerationID,
		Status:       g.Status,
		Subject:      g.Subject,
		Style:        g.Style,
		CreatedAt:    g.CreatedAt,
		CompletedAt:  g.CompletedAt,
	}
	if g.ResultImageID != nil {
		resp.ResultImageID = *g.ResultImageID
	}
	if g.ErrorCode != nil {
		resp.ErrorCode = *g.ErrorCode
		resp.Message = UserMessage(*g.ErrorCode)
	}
	return resp
}
