package message

import "testing"

func startedBuilder(t *testing.T) *MessageChainBuilder {
	t.Helper()
	var b MessageChainBuilder
	if err := b.Start("you are a cat"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &b
}

func TestNewMessageChain_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		turns []Turn
	}{
		{"empty", nil},
		{"no system first", []Turn{{Role: RoleUser, Content: "hi"}}},
		{"missing role", []Turn{{Role: RoleSystem, Content: "s"}, {Content: "x"}}},
		{"missing content", []Turn{{Role: RoleSystem, Content: "s"}, {Role: RoleUser}}},
	}
	for _, tc := range cases {
		if _, err := NewMessageChain(tc.turns); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestBuilder_DoubleStart(t *testing.T) {
	b := startedBuilder(t)
	if err := b.Start("again"); err == nil {
		t.Fatal("expected error on second Start")
	}
}

func TestBuilder_RequiresStart(t *testing.T) {
	var b MessageChainBuilder
	if err := b.AddUser("hi", ""); err == nil {
		t.Fatal("AddUser before Start should fail")
	}
	if err := b.AddAssistant("hi"); err == nil {
		t.Fatal("AddAssistant before Start should fail")
	}
}

func TestBuilder_ConsecutiveUserRejected(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("one", ""); err != nil {
		t.Fatalf("first AddUser: %v", err)
	}
	if err := b.AddUser("two", ""); err == nil {
		t.Fatal("expected error for consecutive user turns")
	}
}

func TestBuilder_ConsecutiveAssistantRejected(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("one", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := b.AddAssistant("a"); err != nil {
		t.Fatalf("AddAssistant: %v", err)
	}
	if err := b.AddAssistant("b"); err == nil {
		t.Fatal("expected error for consecutive assistant turns")
	}
}

func TestBuilder_UserNeedsTextOrImage(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("", ""); err == nil {
		t.Fatal("expected error for user turn with neither text nor image")
	}
}

func TestBuilder_ImageTurnIsPartList(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("看看这个", "aGVsbG8="); err != nil {
		t.Fatalf("AddUser with image: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	turns := chain.Turns()
	parts, ok := turns[1].Content.([]any)
	if !ok {
		t.Fatalf("image turn content is %T, want part list", turns[1].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want image + text", len(parts))
	}
	img, ok := parts[0].(imagePart)
	if !ok {
		t.Fatalf("first part is %T, want image part", parts[0])
	}
	if img.ImageURL.Detail != "low" {
		t.Fatalf("image detail = %q, want low", img.ImageURL.Detail)
	}
	const prefix = "data:image/jpeg;base64,aGVsbG8="
	if img.ImageURL.URL != prefix {
		t.Fatalf("image url = %q", img.ImageURL.URL)
	}
}

func TestBuilder_AddUserUnits_SingleTurn(t *testing.T) {
	b := startedBuilder(t)
	units := []*MessageUnit{
		{Nickname: "a", UserID: "1", Text: "hello", Time: "1"},
		{Text: "hi", Time: "2", IsSelf: true},
		{Nickname: "b", UserID: "2", Text: "yo", Time: "3"},
	}
	if err := b.AddUserUnits(units); err != nil {
		t.Fatalf("AddUserUnits: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Len() != 2 {
		t.Fatalf("chain length = %d, want system + one user turn", chain.Len())
	}
	text, ok := chain.Turns()[1].Content.(string)
	if !ok {
		t.Fatalf("unit turn content is %T", chain.Turns()[1].Content)
	}
	want := units[0].String() + "\n" + units[1].String() + "\n" + units[2].String()
	if text != want {
		t.Fatalf("unit turn = %q, want %q", text, want)
	}
}

func TestBuilder_AddUserUnits_Empty(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUserUnits(nil); err == nil {
		t.Fatal("expected error for empty unit list")
	}
}

func TestBuilder_AddUnits_SelfBecomesAssistant(t *testing.T) {
	b := startedBuilder(t)
	units := []*MessageUnit{
		{Nickname: "a", UserID: "1", Text: "hello", Time: "1"},
		{Text: "hi", Time: "2", IsSelf: true},
	}
	if err := b.AddUnits(units); err != nil {
		t.Fatalf("AddUnits: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	turns := chain.Turns()
	if turns[1].Role != RoleUser || turns[2].Role != RoleAssistant {
		t.Fatalf("roles = %s, %s; want user, assistant", turns[1].Role, turns[2].Role)
	}
}

func TestBuilder_AppendSystem(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AppendSystem("you may use tools"); err != nil {
		t.Fatalf("AppendSystem: %v", err)
	}
	if err := b.AddUser("hi", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sys := chain.Turns()[0].Content.(string)
	if sys != "you are a cat\nyou may use tools" {
		t.Fatalf("system turn = %q", sys)
	}
}

func TestBuilder_ResetsAfterBuild(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("hi", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Builder is empty again; building without Start must fail.
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error building from a reset builder")
	}
}

func TestFromChain_ExtendsBaseChain(t *testing.T) {
	b := startedBuilder(t)
	base, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ext := FromChain(base)
	if err := ext.AddUser("hi", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	chain, err := ext.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Len() != 2 || chain.Turns()[0].Role != RoleSystem || chain.LastRole() != RoleUser {
		t.Fatalf("unexpected chain turns: %+v", chain.Turns())
	}
	// The base chain must stay untouched by the extension.
	if base.Len() != 1 {
		t.Fatalf("base chain mutated, len = %d", base.Len())
	}
	// A seeded builder already holds a system turn.
	if err := FromChain(base).Start("again"); err == nil {
		t.Fatal("expected error starting a seeded builder")
	}
}

func TestChain_TurnsIsACopy(t *testing.T) {
	b := startedBuilder(t)
	if err := b.AddUser("hi", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	turns := chain.Turns()
	turns[0].Content = "mutated"
	if chain.Turns()[0].Content == "mutated" {
		t.Fatal("mutating the returned slice changed the chain")
	}
}
