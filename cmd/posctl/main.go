// Command posctl operates a till server from the terminal.
//
//	posctl -user ana -password pw open 100
//	posctl sale -pay CASH v-mug:2 2001
//	posctl close 140,50
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/warp/cashdrawer/pos"
)

// as a CLI application, it has a very short lived lifecycle, so global flags are fine.
var (
	serverURL = flag.String("server", envOr("POS_SERVER", "http://localhost:8080"), "Till server base URL")
	userID    = flag.String("user", envOr("POS_USER", "admin"), "User id")
	password  = flag.String("password", os.Getenv("POS_PASSWORD"), "Password (or POS_PASSWORD)")
	currency  = flag.String("currency", pos.DefaultCurrency, "Display currency code")
)

// stdout is where commands print; tests replace it.
var stdout io.Writer = os.Stdout

// Commands lists every posctl subcommand.
var Commands = []subcommands.Command{
	&activeCmd{},
	&openCmd{},
	&closeCmd{},
	&expenseCmd{},
	&unexpenseCmd{},
	&saleCmd{},
	&historyCmd{},
	&summaryCmd{},
	&exportCmd{},
	&importCmd{},
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range Commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
