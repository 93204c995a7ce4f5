package guard

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustFilter(t *testing.T, keywords []string) *Filter {
	t.Helper()
	f, err := NewFilter(keywords, testLogger())
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	return f
}

func TestReview_KeywordSubstringMatch(t *testing.T) {
	f := mustFilter(t, []string{"台湾"})
	ok, pattern := f.Review("我觉得台湾的夜市很好玩")
	if ok {
		t.Fatal("fragment containing the keyword must be withheld")
	}
	if pattern == "" {
		t.Fatal("matched pattern must be reported")
	}
}

func TestReview_CleanFragmentPasses(t *testing.T) {
	f := mustFilter(t, []string{"台湾"})
	if ok, _ := f.Review("今天天气不错"); !ok {
		t.Fatal("clean fragment must pass")
	}
}

func TestReview_CaseInsensitiveLiteral(t *testing.T) {
	f := mustFilter(t, []string{"BadWord"})
	if ok, _ := f.Review("this has badword inside"); ok {
		t.Fatal("literal keywords match case-insensitively")
	}
}

func TestReview_RegexPatternPassthrough(t *testing.T) {
	f := mustFilter(t, []string{`\d{11}`})
	if ok, _ := f.Review("我的手机号是13812345678"); ok {
		t.Fatal("regex pattern should match an 11-digit number")
	}
	if ok, _ := f.Review("数字123不够长"); !ok {
		t.Fatal("short number should pass")
	}
}

func TestNewFilter_InvalidRegex(t *testing.T) {
	if _, err := NewFilter([]string{"[broken"}, testLogger()); err == nil {
		t.Fatal("expected error for invalid regex pattern")
	}
}

func TestReview_EmptyKeywordList(t *testing.T) {
	f := mustFilter(t, nil)
	if ok, _ := f.Review("anything goes"); !ok {
		t.Fatal("empty keyword list must pass everything")
	}
}
