package message

import (
	"fmt"
	"regexp"
)

// unitPattern matches the envelope produced by MessageUnit.String for
// ordinary (non-self, non-notice) units.
var unitPattern = regexp.MustCompile(
	`^<message><time:(?P<time>.*?)\/><user:(?P<nickname>.*?)\/><user_qqid:(?P<userid>.*?)\/>(?:<user_card:(?P<card>.*?)\/>)?(?P<text>.*)</message>$`,
)

// MessageUnit is one observed conversation event. Fields are set by the
// ingestion boundary and treated as immutable afterwards, except for
// Merge which the memory layer uses to coalesce consecutive units from
// the same user.
type MessageUnit struct {
	Nickname string
	UserID   string
	Text     string
	Time     string
	Source   string
	Card     string // group display name, empty if none
	IsNotice bool
	IsSelf   bool
}

// Key is the unit's identity for hashing and dedup: user plus timestamp.
func (u *MessageUnit) Key() string {
	return u.UserID + ":" + u.Time
}

// Merge appends another unit's text and adopts its timestamp. Used when
// consecutive units from the same user are coalesced.
func (u *MessageUnit) Merge(next *MessageUnit) {
	u.Text += "\n" + next.Text
	u.Time = next.Time
}

// String renders the delimited textual envelope fed to the model. Self
// messages carry only the timestamp, notices use a <notice> wrapper.
// Delimiters inside Text or Card are not escaped; the envelope is only
// generated from trusted ingestion data.
func (u *MessageUnit) String() string {
	if u.IsSelf {
		return fmt.Sprintf("<time:%s/>%s", u.Time, u.Text)
	}
	tag := "message"
	if u.IsNotice {
		tag = "notice"
	}
	if u.Card != "" {
		return fmt.Sprintf("<%s><time:%s/><user:%s/><user_qqid:%s/><user_card:%s/>%s</%s>",
			tag, u.Time, u.Nickname, u.UserID, u.Card, u.Text, tag)
	}
	return fmt.Sprintf("<%s><time:%s/><user:%s/><user_qqid:%s/>%s</%s>",
		tag, u.Time, u.Nickname, u.UserID, u.Text, tag)
}

// ParseUnit parses the <message> envelope form produced by String.
func ParseUnit(s string) (*MessageUnit, error) {
	m := unitPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed message unit: %q", s)
	}
	fields := make(map[string]string, 5)
	for i, name := range unitPattern.SubexpNames() {
		if name != "" {
			fields[name] = m[i]
		}
	}
	return &MessageUnit{
		Nickname: fields["nickname"],
		UserID:   fields["userid"],
		Text:     fields["text"],
		Time:     fields["time"],
		Card:     fields["card"],
	}, nil
}
