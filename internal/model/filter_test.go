package model

import "testing"

func TestParseVerdicts_WrappedObject(t *testing.T) {
	verdicts, err := parseVerdicts(`{"verified":[{"can_send":true,"reason":""}]}`)
	if err != nil {
		t.Fatalf("parseVerdicts: %v", err)
	}
	if len(verdicts) != 1 || !verdicts[0].CanSend {
		t.Fatalf("verdicts = %v", verdicts)
	}
}

func TestParseVerdicts_BareArrayAccepted(t *testing.T) {
	verdicts, err := parseVerdicts(`[{"can_send":false,"reason":"不合适"}]`)
	if err != nil {
		t.Fatalf("parseVerdicts: %v", err)
	}
	if len(verdicts) != 1 || verdicts[0].CanSend || verdicts[0].Reason != "不合适" {
		t.Fatalf("verdicts = %v", verdicts)
	}
}

func TestParseVerdicts_CodeFenced(t *testing.T) {
	verdicts, err := parseVerdicts("```json\n{\"verified\":[{\"can_send\":true,\"reason\":\"\"}]}\n```")
	if err != nil {
		t.Fatalf("parseVerdicts: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("verdicts = %v", verdicts)
	}
}

func TestParseVerdicts_Garbage(t *testing.T) {
	if _, err := parseVerdicts("this is not json"); err == nil {
		t.Fatal("expected error for unparseable content")
	}
}
