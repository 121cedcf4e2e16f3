package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/api"
	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/config"
	"github.com/mahaj/taskchat/pkg/credential"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/realtime"
)

const historyLimit = 20

func main() {
	var cfgPaths string
	flag.StringVar(&cfgPaths, "c", "", "config file path (supports: a.yml,b.yml)")
	email := flag.String("email", "", "log in with this email before connecting")
	password := flag.String("password", os.Getenv("TASKCHAT_PASSWORD"), "password for -email")
	dmUser := flag.String("dm", "", "user id to chat with")
	projectID := flag.String("project", "", "project id whose room to join (overrides -dm)")
	flag.Parse()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	var route model.Route
	switch {
	case *projectID != "":
		route = model.Project(*projectID)
	case *dmUser != "":
		route = model.Direct(*dmUser)
	default:
		log.Fatal("one of -dm or -project is required")
	}

	tokens, err := credential.Open(cfg.Credential.Store, credential.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		log.Fatal("open credential store failed", zap.Error(err))
	}
	if c, ok := tokens.(io.Closer); ok {
		defer c.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(api.Options{BaseURL: cfg.API.URL, Timeout: cfg.API.Timeout, Logger: log}, tokens)
	if *email != "" {
		res, err := client.Login(ctx, *email, *password)
		if err != nil {
			log.Fatal("login failed", zap.Error(err))
		}
		log.Info("logged in", zap.String("user", res.User.DisplayName()))
	}

	conn := realtime.New(realtime.Options{
		URL:              cfg.Realtime.URL,
		Namespace:        cfg.Realtime.Namespace,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		Logger:           log,
	}, tokens)

	done := make(chan struct{})
	ui := &session{client: client, conn: conn, route: route, log: log}
	ui.subscribe(done)

	if err := conn.Connect(ctx); err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}
	ui.printHistory(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			conn.Disconnect()
			return
		case <-done:
			return
		case text, ok := <-lines:
			if !ok || text == "/quit" {
				conn.Disconnect()
				return
			}
			ui.handle(ctx, text)
			fmt.Print("> ")
		}
	}
}

type session struct {
	client *api.Client
	conn   *realtime.Conn
	route  model.Route
	log    *zap.Logger
	typing bool
}

func (s *session) subscribe(done chan struct{}) {
	var once sync.Once
	s.conn.OnConnected(func() {
		fmt.Printf("\rconnected as %s\n> ", s.route)
		if pid, ok := s.route.ProjectID(); ok {
			if err := s.conn.JoinProjectRoom(pid); err != nil {
				s.log.Warn("join project failed", zap.Error(err))
			}
		}
	})
	s.conn.OnDisconnected(func(reason error) {
		if reason != nil {
			fmt.Printf("\rdisconnected: %v\n", reason)
		}
		once.Do(func() { close(done) })
	})
	s.conn.OnJoinedProject(func(id model.ID) {
		fmt.Printf("\rjoined project %s\n> ", id)
	})
	s.conn.OnMessage(func(m model.Message) {
		if m.Route != s.route && !s.isPartner(m) {
			return
		}
		fmt.Printf("\r%s: %s\n> ", m.SenderName, m.Content)
	})
	s.conn.OnTyping(func(t model.TypingEvent) {
		if t.Typing {
			fmt.Printf("\ruser %s is typing...\n> ", t.UserID)
		}
	})
	s.conn.OnUserOnline(func(p model.PresenceEvent) {
		fmt.Printf("\ruser %s is online\n> ", p.UserID)
	})
	s.conn.OnUserOffline(func(p model.PresenceEvent) {
		fmt.Printf("\ruser %s went offline\n> ", p.UserID)
	})
	s.conn.OnOnlineUsers(func(ids []model.ID) {
		fmt.Printf("\ronline: %v\n> ", ids)
	})
	s.conn.OnError(func(err error) {
		fmt.Printf("\rerror: %v\n> ", err)
	})
}

// isPartner reports whether m belongs to the open direct thread: messages
// from the partner are addressed to us, not to the partner.
func (s *session) isPartner(m model.Message) bool {
	partner, ok := s.route.RecipientID()
	if !ok {
		return false
	}
	_, direct := m.Route.RecipientID()
	return direct && m.SenderID.String() == partner
}

func (s *session) printHistory(ctx context.Context) {
	var (
		msgs []model.Message
		err  error
	)
	if pid, ok := s.route.ProjectID(); ok {
		msgs, err = s.client.Chat.GetProjectMessageHistory(ctx, pid, 1, historyLimit)
	} else {
		msgs, err = s.client.Chat.GetDirectMessageHistory(ctx, s.route.ID(), 1, historyLimit)
	}
	if err != nil {
		fmt.Println("history:", err)
		return
	}
	// newest first on the wire
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Printf("[%s] %s: %s\n", msgs[i].CreatedAt, msgs[i].SenderName, msgs[i].Content)
	}
}

func (s *session) handle(ctx context.Context, text string) {
	switch strings.TrimSpace(text) {
	case "":
		return
	case "/typing":
		s.typing = !s.typing
		if s.typing {
			s.conn.StartTyping(s.route)
		} else {
			s.conn.StopTyping(s.route)
		}
		return
	case "/history":
		s.printHistory(ctx)
		return
	case "/read":
		rid, ok := s.route.RecipientID()
		if !ok {
			fmt.Println("/read only works in direct chats")
			return
		}
		res := s.client.Chat.MarkMessagesAsRead(ctx, rid)
		fmt.Printf("marked %d messages as read\n", res.MarkedCount)
		return
	case "/online":
		if err := s.conn.RequestOnlineUsers(); err != nil {
			fmt.Println("online:", err)
		}
		return
	}

	if s.typing {
		s.typing = false
		s.conn.StopTyping(s.route)
	}
	err := s.conn.SendMessage(s.route, text)
	if errors.Is(err, apierr.ErrNotConnected) {
		_, err = s.client.Chat.SendMessage(ctx, s.route, text)
	}
	if err != nil {
		fmt.Println("send:", err)
	}
}
