package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aindrajaya/ask-football/contract"
	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/aindrajaya/ask-football/prompt"
	"github.com/aindrajaya/ask-football/runtime"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type messenger interface {
	Send(ctx context.Context, req runtime.SendRequest) (runtime.SendResult, error)
}

// Console is the terminal surface of one chat session: it prints what the
// joined channel receives and turns typed lines into sends or commands.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	router    messenger
	bus       contract.IBus
	limiter   contract.IRateLimiter
	catalogue prompt.Catalogue
	user      domain.Sender
	channel   domain.ChannelID
	aiEnabled bool
	colours   bool
	leave     func()
}

func NewConsole(out io.Writer, router messenger, bus contract.IBus, limiter contract.IRateLimiter,
	catalogue prompt.Catalogue, user domain.Sender, colours bool) *Console {
	return &Console{
		out:       out,
		router:    router,
		bus:       bus,
		limiter:   limiter,
		catalogue: catalogue,
		user:      user,
		aiEnabled: true,
		colours:   colours,
	}
}

func (c *Console) SetAI(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aiEnabled = enabled
}

// Join switches the session to channel. Envelopes of the previous channel
// stop printing immediately.
func (c *Console) Join(channel domain.ChannelID) error {
	spec, err := c.catalogue.Lookup(channel)
	if err != nil {
		return err
	}
	c.mu.Lock()
	leave := c.leave
	c.leave = nil
	c.channel = channel
	c.mu.Unlock()
	if leave != nil {
		leave()
	}

	unsubscribe := c.bus.Subscribe(channel, c.render)
	c.mu.Lock()
	c.leave = unsubscribe
	c.mu.Unlock()
	c.println(c.paint(color.New(color.BgBlack, color.FgGreen), fmt.Sprintf("====== #%s ======", spec.ID)))
	c.println(spec.Description)
	return nil
}

// Leave stops printing the current channel.
func (c *Console) Leave() {
	c.mu.Lock()
	leave := c.leave
	c.leave = nil
	c.mu.Unlock()
	if leave != nil {
		leave()
	}
}

// Run reads lines from in until EOF, /quit or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle processes one typed line and reports whether the session should end.
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "quit", "exit":
		return true
	case "join":
		if err := c.Join(domain.ChannelID(arg)); err != nil {
			c.warn(err.Error())
		}
	case "channels":
		c.printChannels()
	case "quota":
		c.printQuota(c.limiter.Check(ctx))
	case "reset":
		c.limiter.Reset(ctx)
		c.printQuota(c.limiter.Check(ctx))
	case "ai":
		switch arg {
		case "on":
			c.SetAI(true)
		case "off":
			c.SetAI(false)
		default:
			c.warn("usage: /ai on|off")
			return false
		}
		c.println(fmt.Sprintf("AI replies %s", arg))
	case "help":
		c.printHelp()
	default:
		c.warn(fmt.Sprintf("unknown command /%s, try /help", command))
	}
	return false
}

func (c *Console) send(ctx context.Context, text string) {
	c.mu.Lock()
	req := runtime.SendRequest{Text: text, Channel: c.channel, Sender: c.user, AIEnabled: c.aiEnabled}
	c.mu.Unlock()

	res, err := c.router.Send(ctx, req)
	switch {
	case errors.Is(err, errors.ErrEmptyMessage):
		return
	case err != nil:
		c.warn(err.Error())
		return
	}
	if !res.Accepted {
		c.warn(fmt.Sprintf("Daily limit reached. Resets at %s.", res.Status.ResetAt.Local().Format("15:04")))
		return
	}
	c.println(c.paint(color.New(color.FgGray), fmt.Sprintf("%d/%d messages left today", res.Status.Remaining, res.Status.Used+res.Status.Remaining)))
}

// render is the bus handler of the joined channel.
func (c *Console) render(env domain.Envelope) {
	switch env.Type {
	case domain.MessageEvent:
		m := env.Message
		name := c.paint(color.New(color.FgCyan, color.OpBold), m.Sender.DisplayName)
		if m.Sender.IsBot {
			name = c.paint(color.New(color.FgYellow, color.OpBold), m.Sender.DisplayName)
		}
		c.println(fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("15:04"), name, m.Text))
	case domain.TypingEvent:
		if env.Typing.Active {
			c.println(c.paint(color.New(color.FgGray), fmt.Sprintf("%s is typing...", env.Typing.Sender.DisplayName)))
		}
	}
}

func (c *Console) printChannels() {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"", "Channel", "Name", "Description"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, ch := range c.catalogue.Channels {
		marker := ""
		if ch.ID == c.channel {
			marker = "*"
		}
		table.Append([]string{marker, string(ch.ID), ch.Name, ch.Description})
	}
	table.Render()
}

func (c *Console) printQuota(status domain.QuotaStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Can send", "Used", "Remaining", "Resets at"})
	table.SetBorder(false)
	table.Append([]string{
		fmt.Sprintf("%t", status.CanSend),
		fmt.Sprintf("%d", status.Used),
		fmt.Sprintf("%d", status.Remaining),
		status.ResetAt.Local().Format("2006-01-02 15:04"),
	})
	table.Render()
}

func (c *Console) printHelp() {
	c.println(strings.Join([]string{
		"/join <channel>  switch channel",
		"/channels        list channels",
		"/quota           show today's quota",
		"/reset           clear today's quota",
		"/ai on|off       toggle AI replies",
		"/quit            leave",
	}, "\n"))
}

func (c *Console) warn(text string) {
	c.println(c.paint(color.New(color.FgRed), text))
}

func (c *Console) println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, text)
}

func (c *Console) paint(style color.Style, text string) string {
	if !c.colours {
		return text
	}
	return style.Render(text)
}
