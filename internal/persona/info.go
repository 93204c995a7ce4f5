package persona

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// BotInfo is the persona's public identity, editable as YAML.
type BotInfo struct {
	Name        string   `yaml:"name"`
	Alias       []string `yaml:"alias"`
	Gender      string   `yaml:"gender"`
	Age         int      `yaml:"age"`
	Species     string   `yaml:"species"`
	Hobbies     []string `yaml:"hobbies"`
	Personality []string `yaml:"personality"`
	ChatStyle   []string `yaml:"chat_style"`
	Appearance  string   `yaml:"appearance"`
	MoreInfo    string   `yaml:"more_info"`
}

func defaultInfo() BotInfo {
	return BotInfo{
		Name:        "月白",
		Alias:       []string{"Sirius"},
		Gender:      "女",
		Age:         18,
		Species:     "人类",
		Hobbies:     []string{"编程", "绘画", "音乐", "游戏", "摄影"},
		Personality: []string{"聪明", "理智", "幽默"},
		ChatStyle:   []string{"少量夹杂网络梗", "适当调侃", "有时用'喵'作语气词"},
		Appearance:  "有着蓝色的长发和蓝色的眼睛，身材高挑纤细，喜欢穿蓝色JK。",
		MoreInfo:    "无",
	}
}

// Mentioned reports whether the text names the persona by name or any
// alias, case-insensitively.
func (b BotInfo) Mentioned(text string) bool {
	lower := strings.ToLower(text)
	if b.Name != "" && strings.Contains(lower, strings.ToLower(b.Name)) {
		return true
	}
	for _, a := range b.Alias {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// Persona holds the current identity behind an atomic pointer so a
// reload swaps the whole value instead of mutating fields in place.
type Persona struct {
	path string
	info atomic.Pointer[BotInfo]
}

// Load reads the identity file, writing the defaults first when the
// file does not exist yet.
func Load(path string) (*Persona, error) {
	p := &Persona{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		info := defaultInfo()
		data, err := yaml.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("marshal persona defaults: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write persona file %s: %w", path, err)
		}
		p.info.Store(&info)
		return p, nil
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the identity file and swaps the value.
func (p *Persona) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read persona file %s: %w", p.path, err)
	}
	info := defaultInfo()
	if err := yaml.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parse persona file %s: %w", p.path, err)
	}
	p.info.Store(&info)
	return nil
}

// Info returns the current identity value.
func (p *Persona) Info() BotInfo {
	return *p.info.Load()
}
