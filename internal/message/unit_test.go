package message

import "testing"

func TestUnitString_WithCard(t *testing.T) {
	u := &MessageUnit{Nickname: "小明", UserID: "10001", Text: "你好", Time: "1700000000", Card: "群主"}
	want := "<message><time:1700000000/><user:小明/><user_qqid:10001/><user_card:群主/>你好</message>"
	if got := u.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestUnitString_WithoutCard(t *testing.T) {
	u := &MessageUnit{Nickname: "小明", UserID: "10001", Text: "你好", Time: "1"}
	want := "<message><time:1/><user:小明/><user_qqid:10001/>你好</message>"
	if got := u.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestUnitString_Self(t *testing.T) {
	u := &MessageUnit{Text: "我来啦", Time: "2", IsSelf: true}
	if got := u.String(); got != "<time:2/>我来啦" {
		t.Fatalf("self String() = %q", got)
	}
}

func TestUnitString_Notice(t *testing.T) {
	u := &MessageUnit{Nickname: "系统", UserID: "0", Text: "某人入群了", Time: "3", IsNotice: true}
	want := "<notice><time:3/><user:系统/><user_qqid:0/>某人入群了</notice>"
	if got := u.String(); got != want {
		t.Fatalf("notice String() = %q, want %q", got, want)
	}
}

func TestParseUnit_Roundtrip(t *testing.T) {
	cases := []*MessageUnit{
		{Nickname: "小明", UserID: "10001", Text: "你好", Time: "1700000000", Card: "群主"},
		{Nickname: "alice", UserID: "42", Text: "hi there", Time: "1"},
	}
	for _, u := range cases {
		parsed, err := ParseUnit(u.String())
		if err != nil {
			t.Fatalf("ParseUnit(%q): %v", u.String(), err)
		}
		if parsed.Nickname != u.Nickname || parsed.UserID != u.UserID ||
			parsed.Text != u.Text || parsed.Time != u.Time || parsed.Card != u.Card {
			t.Fatalf("roundtrip mismatch: got %+v, want %+v", parsed, u)
		}
	}
}

func TestParseUnit_Malformed(t *testing.T) {
	for _, s := range []string{"", "plain text", "<message>half open"} {
		if _, err := ParseUnit(s); err == nil {
			t.Fatalf("ParseUnit(%q): expected error", s)
		}
	}
}

func TestKey(t *testing.T) {
	u := &MessageUnit{UserID: "5", Time: "1"}
	if u.Key() != "5:1" {
		t.Fatalf("Key() = %q", u.Key())
	}
}

func TestMerge(t *testing.T) {
	a := &MessageUnit{UserID: "5", Text: "first", Time: "1"}
	b := &MessageUnit{UserID: "5", Text: "second", Time: "2"}
	a.Merge(b)
	if a.Text != "first\nsecond" {
		t.Fatalf("merged text = %q", a.Text)
	}
	if a.Time != "2" {
		t.Fatalf("merged time = %q, want the newer timestamp", a.Time)
	}
}
