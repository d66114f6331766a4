package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"logitalk/internal/client"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:5000", "server base URL")
		email    = flag.String("email", "", "account email")
		password = flag.String("password", "", "account password")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chatcli -email you@example.com -password secret [-server http://host:port]")
		os.Exit(2)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, err := client.Login(ctx, *server, *email, *password)
	if err != nil {
		log.Fatal("login failed", zap.Error(err))
	}

	api := client.NewAPI(*server, token)
	self, err := api.Profile(ctx)
	if err != nil {
		log.Fatal("could not load profile", zap.Error(err))
	}
	fmt.Printf("logged in as %s (#%d)\n", self.Name, self.ID)

	engine := client.NewEngine(self.ID, api)

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	socket := client.NewSocket(wsURL, token, log)

	queue := client.NewQueue(socket, client.DefaultMaxRetries, func(tmpID string) {
		engine.HandlePermanentFailure(tmpID)
	})
	engine.BindOutbound(queue)
	engine.BindReadAcker(socket)
	socket.Bind(engine, queue)

	engine.SetOnChange(func() {
		render(engine)
	})

	go func() {
		if err := socket.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("channel closed", zap.Error(err))
			cancel()
		}
	}()

	if err := engine.Refresh(ctx); err != nil {
		log.Warn("could not load conversations", zap.Error(err))
	}
	render(engine)

	repl(ctx, engine, api)
	cancel()
}

func repl(ctx context.Context, engine *client.Engine, api *client.API) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(`commands: /chats  /open <user-id>  /find <name>  /quit  (anything else sends a message)`)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/chats":
			render(engine)
		case strings.HasPrefix(line, "/open "):
			id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			if err != nil {
				fmt.Println("expected a numeric user id")
				continue
			}
			if err := engine.Select(ctx, id); err != nil {
				fmt.Println("could not open conversation:", err)
				continue
			}
			render(engine)
		case strings.HasPrefix(line, "/find "):
			query := strings.TrimSpace(strings.TrimPrefix(line, "/find "))
			users, err := api.SearchUsers(ctx, query)
			if err != nil {
				fmt.Println("search failed:", err)
				continue
			}
			for _, u := range users {
				fmt.Printf("  #%d %s\n", u.ID, u.Name)
			}
		case line == "":
		default:
			if _, ok := engine.Send(line); !ok {
				fmt.Println("open a conversation first with /open <user-id>")
			}
		}
	}
}

func render(engine *client.Engine) {
	active := engine.Active()
	if active == 0 {
		for _, s := range engine.Summaries() {
			marker := " "
			if s.IsOnline {
				marker = "*"
			}
			unread := ""
			if s.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", s.UnreadCount)
			}
			fmt.Printf("%s #%d %s: %s%s\n", marker, s.CounterpartID, s.Name, s.LastMessage, unread)
		}
		return
	}

	for _, entry := range engine.Entries() {
		prefix := "them"
		if entry.Role == client.RoleMe {
			prefix = "  me"
		}
		suffix := ""
		switch entry.State {
		case client.EntryPending:
			suffix = " …"
		case client.EntryFailed:
			suffix = " [failed]"
		default:
			if entry.Role == client.RoleMe && entry.Read {
				suffix = " ✓✓"
			}
		}
		fmt.Printf("%s: %s%s\n", prefix, entry.Text, suffix)
	}
}
