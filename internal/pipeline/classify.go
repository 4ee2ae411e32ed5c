package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/educheck/educheck/internal/model"
)

// ClassifyFile decides a document's type from its filename. Anything not
// recognizably a key or a question paper is a student sheet; hidden files
// and non-document formats are misc and skipped.
func ClassifyFile(name string) model.DocType {
	base := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(base, ".") {
		return model.DocMisc
	}
	switch filepath.Ext(base) {
	case "", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".pdf":
	default:
		return model.DocMisc
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.Contains(stem, "key") {
		return model.DocAnswerKey
	}
	if strings.Contains(stem, "question") || strings.Contains(stem, "paper") ||
		strings.Contains(stem, "qp") {
		return model.DocQuestionPaper
	}
	return model.DocStudentAnswer
}
