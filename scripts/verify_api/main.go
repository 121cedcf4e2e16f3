package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/mahaj/taskchat/pkg/api"
	"github.com/mahaj/taskchat/pkg/credential"
)

// verify_api logs in against a running backend and prints what the chat
// screen would load first.
func main() {
	apiAddr := flag.String("api", "http://localhost:3000", "backend base url")
	email := flag.String("email", "test@example.com", "login email")
	password := flag.String("password", os.Getenv("TASKCHAT_PASSWORD"), "login password")
	dm := flag.String("dm", "", "also fetch the direct history with this user id")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := api.NewClient(api.Options{BaseURL: *apiAddr}, credential.NewMemoryStore(""))

	// 1. Login
	res, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatal("login failed: ", err)
	}
	log.Printf("Logged in as %s (%s)", res.User.DisplayName(), res.User.ID)

	// 2. Conversations and unread count
	convs, err := client.Chat.GetConversations(ctx)
	if err != nil {
		log.Fatal("conversations failed: ", err)
	}
	for _, c := range convs {
		log.Printf("conversation %s unread=%d", c.Route(), c.UnreadCount)
	}
	unread, err := client.Chat.GetUnreadCount(ctx)
	if err != nil {
		log.Fatal("unread count failed: ", err)
	}
	log.Printf("Unread: %d", unread)

	// 3. History for one DM
	if *dm != "" {
		msgs, err := client.Chat.GetDirectMessageHistory(ctx, *dm, 1, 50)
		if err != nil {
			log.Fatal("history failed: ", err)
		}
		for _, m := range msgs {
			log.Printf("%s %s: %s", m.CreatedAt, m.SenderName, m.Content)
		}
	}
}
