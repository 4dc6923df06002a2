package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, thread, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSubmissionNotFound  = "SUBMISSION_NOT_FOUND"
	ErrCodeInvalidSubmissionID = "INVALID_SUBMISSION_ID"
	ErrCodeReplySetTooLarge    = "REPLY_SET_TOO_LARGE"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewSubmissionNotFoundError は投稿未検出エラーを生成する。
func NewSubmissionNotFoundError(submissionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", submissionID),
		Category: "thread",
		Action:   "投稿IDを確認してください。取り込み前の投稿は参照できません。",
	}
}

// NewInvalidSubmissionIDError は無効な投稿IDエラーを生成する。
func NewInvalidSubmissionIDError(submissionID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSubmissionID,
		Message:  fmt.Sprintf("無効な投稿IDです: %q", submissionID),
		Category: "validation",
		Action:   "t3_ プレフィックス付き、またはプレフィックスなしの投稿IDを指定してください。",
	}
}

// NewReplySetTooLargeError は返信数が上限を超えた場合のエラーを生成する。
func NewReplySetTooLargeError(count, limit int) *APIError {
	return &APIError{
		Code:     ErrCodeReplySetTooLarge,
		Message:  fmt.Sprintf("返信数が上限を超えています: %d件（上限 %d件）", count, limit),
		Category: "thread",
		Action:   "THREADS_MAX_REPLIES を引き上げるか、この投稿をスキップしてください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
