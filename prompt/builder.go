package prompt

import (
	"strings"
	"text/template"

	"github.com/abadojack/whatlanggo"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/samber/lo"
)

var fullTemplate = template.Must(template.New("full").Parse(`{{.Persona}}

Recent Chat History:
{{.History}}

User: {{.Current}}

Remember: Stay focused on this channel's specific topic. Redirect if users discuss off-topic subjects.{{with .Language}}
Answer in {{.}}.{{end}}`))

type fullPrompt struct {
	Persona  string
	History  string
	Current  string
	Language string
}

// Builder renders channel prompts. Providers that take a single text input
// use Full, chat-style providers use System plus a separate user turn.
type Builder struct {
	catalogue Catalogue
	window    int
}

func NewBuilder(catalogue Catalogue) Builder {
	window := catalogue.HistoryWindow
	if window <= 0 {
		window = 10
	}
	return Builder{catalogue: catalogue, window: window}
}

func (b Builder) System(channel domain.ChannelID) string {
	return b.catalogue.Persona(channel)
}

func (b Builder) Full(current string, history []domain.Message, channel domain.ChannelID) string {
	var sb strings.Builder
	_ = fullTemplate.Execute(&sb, fullPrompt{
		Persona:  b.System(channel),
		History:  b.History(history),
		Current:  current,
		Language: Language(current),
	})
	return sb.String()
}

// History formats the trailing window as "displayName: text" lines.
func (b Builder) History(history []domain.Message) string {
	if len(history) > b.window {
		history = history[len(history)-b.window:]
	}
	return strings.Join(lo.Map(history, func(m domain.Message, _ int) string {
		return m.Sender.DisplayName + ": " + m.Text
	}), "\n")
}

// Language names the language of text when it is reliably not English.
func Language(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() || info.Lang == whatlanggo.Eng {
		return ""
	}
	return info.Lang.String()
}
