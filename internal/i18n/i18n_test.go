package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NoStudentAnswer")
	if got != "No answer was written for this question." {
		t.Errorf("T(NoStudentAnswer) = %q", got)
	}

	got = T(ctx, "MCQCorrect")
	if got != "Correct option selected." {
		t.Errorf("T(MCQCorrect) = %q", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	got := T(ctx, "MCQCorrect")
	if got != "सही विकल्प चुना गया।" {
		t.Errorf("T(MCQCorrect) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "MissedQuestions", 1)
	if got1 != "1 question was not attempted." {
		t.Errorf("Tp(MissedQuestions, 1) = %q", got1)
	}

	got5 := Tp(ctx, "MissedQuestions", 5)
	if got5 != "5 questions were not attempted." {
		t.Errorf("Tp(MissedQuestions, 5) = %q", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ResultLine", map[string]any{
		"Obtained": "7.5", "Total": "10", "Percent": "75",
	})
	if got != "Scored 7.5 out of 10 (75%)." {
		t.Errorf("Td(ResultLine) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "fr")

	got := T(ctx, "MCQIncorrect")
	if got != "Incorrect option selected." {
		t.Errorf("unknown language should fall back to default, got %q", got)
	}
}
