package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/internal"
	"github.com/aindrajaya/ask-football/repositories"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

func main() {
	// 1. Load config, flags win
	config, err := internal.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	flagSet := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	dbPath := flagSet.String("db", config.BadgerFilepath, "Path to badger DB")
	channel := flagSet.StringP("channel", "c", "", "Also list the stored messages of this channel")
	limit := flagSet.IntP("limit", "l", 20, "Messages to list")
	_ = flagSet.Parse(os.Args[1:])

	// 2. Open Badger in Read-Only mode
	// BypassLockGuard allows opening while a chat process holds the lock
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromString(config.LogLevel)
	if err := inspect(os.Stdout, db, repositories.NewMessageRepository(db, logger, nil),
		repositories.NewQuotaRepository(db, logger), domain.ChannelID(*channel), *limit); err != nil {
		log.Fatal(err)
	}
}

func inspect(out io.Writer, db *badger.DB, messages repositories.IMessageRepository,
	quotas repositories.QuotaRepository, channel domain.ChannelID, limit int) error {
	identity, found, err := repositories.NewIdentityRepository(db).Load(context.Background())
	if err != nil {
		return err
	}
	if found {
		fmt.Fprintf(out, "Identity: %s\n\n", identity)
	} else {
		fmt.Fprintln(out, "Identity: not resolved yet")
	}

	records, err := quotas.Records()
	if err != nil {
		return err
	}
	table := newTable(out, "Identity", "Day", "Count")
	for _, r := range records {
		table.Append([]string{string(r.Identity), string(r.Day), fmt.Sprintf("%d", r.Count)})
	}
	table.Render()

	if channel == "" {
		return nil
	}
	recent, err := messages.Recent(channel, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	table = newTable(out, "Time", "Sender", "Bot", "Text")
	for _, m := range recent {
		table.Append([]string{
			m.Timestamp.Format("2006-01-02 15:04:05"),
			m.Sender.DisplayName,
			fmt.Sprintf("%t", m.Sender.IsBot),
			lo.Ellipsis(m.Text, 60),
		})
	}
	table.Render()
	return nil
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
