package model

import "time"

// User - sticker_users 테이블 구조
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Image - sticker_images 테이블 구조
type Image struct {
	ImageID     string    `json:"image_id"`
	OwnerID     *string   `json:"owner_id"` // null = 공용 라이브러리 이미지
	Kind        string    `json:"kind"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	MimeType    string    `json:"mime_type"`
	FileSize    int64     `json:"file_size"`
	PreviewPath *string   `json:"preview_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// VisibleTo reports whether userID may read the image.
func (i *Image) VisibleTo(userID string) bool {
	return i.OwnerID == nil || *i.OwnerID == userID
}

// Shared reports whether the image belongs to the common library.
func (i *Image) Shared() bool {
	return i.OwnerID == nil
}

// Generation - sticker_generations 테이블 구조
type Generation struct {
	GenerationID      string     `json:"generation_id"`
	UserID            string     `json:"user_id"`
	BackgroundImageID string     `json:"background_image_id"`
	CharacterImageID  string     `json:"character_image_id"`
	Subject           string     `json:"subject"`
	Style             string     `json:"style"`
	Status            string     `json:"status"`
	ResultImageID     *string    `json:"result_image_id"`
	ErrorCode         *string    `json:"error_code"`
	ErrorMessage      *string    `json:"error_message"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
}

// Terminal reports whether the generation can no longer change state.
func (g *Generation) Terminal() bool {
	return IsTerminal(g.Status)
}

// Image kinds
const (
	KindBackground = "background"
	KindCharacter  = "character"
	KindGenerated  = "generated"
)

// ValidUploadKind reports whether users may upload images of kind.
func ValidUploadKind(kind string) bool {
	return kind == KindBackground || kind == KindCharacter
}

// Generation statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Generation error codes
const (
	ErrorCodeUnknownStyle = "unknown_style"
	ErrorCodeMissingImage = "missing_image"
	ErrorCodeNoImage      = "no_image"
	ErrorCodeProvider     = "provider_error"
	ErrorCodeTimeout      = "timeout"
	ErrorCodeCredentials  = "missing_credentials"
	ErrorCodeInternal     = "internal"
)
