package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/chatclient"
	"github.com/rindah89/barter/pkg/logging"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/presence"
	"github.com/rindah89/barter/pkg/session"
)

const maxRedials = 8

const usage = `commands:
  <text>               send a message
  /file <path> [text]  upload and send a file with an optional caption
  /retry               resend the newest failed message
  /delete <n>          delete the n-th newest message if it is yours
  /read                mark the conversation as read
  /quit                leave`

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	gatewayAddr := flag.String("gateway", "ws://localhost:8080", "gateway service address")
	userID := flag.String("user", "user1", "user id")
	with := flag.String("with", "", "user id to chat with")
	first := flag.String("message", "", "message sent once the conversation opens")
	flag.Parse()

	logger := logging.New(logging.Config{ServiceName: "client", Environment: "development", Level: "warn"})
	if *with == "" {
		logger.Fatal().Msg("-with is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := chatclient.New(*apiAddr, &http.Client{Timeout: 30 * time.Second})
	sess, err := api.Login(ctx, *userID)
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}
	fmt.Printf("logged in as %s\n", sess.UserID)

	rt, err := chatclient.DialRealtime(ctx, *gatewayAddr, sess.Token, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to gateway")
	}
	defer func() { rt.Close() }()

	hb := presence.NewHeartbeater(api, sess.UserID, presence.DefaultHeartbeatInterval, logger)
	hb.Start(ctx)
	defer hb.Stop()

	view := &printer{peer: *with, seen: make(map[string]session.EntryState)}
	var ctrl *session.Controller
	ctrl, err = session.New(session.Deps{
		Directory: api,
		Pipeline:  api,
		Uploader:  api,
		Realtime:  rt,
		Presence:  api,
	}, session.Options{
		Session:        sess,
		CounterpartID:  *with,
		InitialMessage: *first,
		OnChange:       func() { view.render(ctrl) },
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create conversation")
	}
	defer ctrl.Close()

	if err := ctrl.Open(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to open conversation")
	}
	fmt.Println(usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rt.Done():
			fmt.Println("connection to gateway lost, reconnecting")
			next, err := redial(ctx, *gatewayAddr, sess.Token, logger)
			if err != nil {
				fmt.Printf("giving up: %v\n", err)
				return
			}
			rt = next
			if err := ctrl.Reconnect(ctx, rt); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return
			}
			if err := run(ctx, ctrl, line); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

// redial retries the gateway with exponential backoff until ctx is done or
// maxRedials attempts fail.
func redial(ctx context.Context, gatewayAddr, token string, logger zerolog.Logger) (*chatclient.Realtime, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxRedials; attempt++ {
		rt, err := chatclient.DialRealtime(ctx, gatewayAddr, token, logger)
		if err == nil {
			return rt, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
	return nil, lastErr
}

func run(ctx context.Context, ctrl *session.Controller, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/read":
		return ctrl.MarkRead(ctx)
	case line == "/retry":
		for _, e := range ctrl.Messages() {
			if e.State == session.EntryFailed {
				_, err := ctrl.Retry(ctx, e.ID)
				return err
			}
		}
		return fmt.Errorf("nothing to retry")
	case strings.HasPrefix(line, "/delete "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
		msgs := ctrl.Messages()
		if err != nil || n < 1 || n > len(msgs) {
			return fmt.Errorf("no message %q", strings.TrimPrefix(line, "/delete "))
		}
		return ctrl.Delete(ctx, msgs[n-1].ID)
	case strings.HasPrefix(line, "/file "):
		path, caption, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/file ")), " ")
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if err := ctrl.SelectMedia(session.FileAttachment(path, typeFor(contentType), contentType)); err != nil {
			return err
		}
		_, err := ctrl.SendSelectedMedia(ctx, caption)
		return err
	default:
		_, err := ctrl.SendText(ctx, line)
		return err
	}
}

func typeFor(contentType string) model.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/gif"):
		return model.TypeGIF
	case strings.HasPrefix(contentType, "image/"):
		return model.TypeImage
	case strings.HasPrefix(contentType, "video/"):
		return model.TypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return model.TypeVoice
	default:
		return model.TypeFile
	}
}

// printer writes each entry once per state it reaches.
type printer struct {
	peer   string
	mu     sync.Mutex
	seen   map[string]session.EntryState
	online *bool
}

func (p *printer) render(ctrl *session.Controller) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if online := ctrl.CounterpartOnline(); p.online == nil || *p.online != online {
		p.online = &online
		status := "offline"
		if online {
			status = "online"
		}
		fmt.Printf("[%s is %s]\n", p.peer, status)
	}

	entries := ctrl.Messages()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		key := e.ID.String()
		if e.Message.ClientRef() != "" {
			key = e.Message.ClientRef()
		}
		if p.seen[key] == e.State && !e.Message.IsDeleted {
			continue
		}
		if e.Message.IsDeleted && p.seen[key] == "deleted" {
			continue
		}
		p.seen[key] = e.State
		if e.Message.IsDeleted {
			p.seen[key] = "deleted"
		}
		fmt.Println(format(e))
	}
}

func format(e session.Entry) string {
	m := e.Message
	var body string
	switch {
	case m.IsDeleted:
		body = "(message deleted)"
	case m.MediaURI != nil:
		body = fmt.Sprintf("[%s] %s", m.MessageType, *m.MediaURI)
		if m.Content != nil && *m.Content != "" {
			body += " " + *m.Content
		}
	case m.Content != nil:
		body = *m.Content
	}
	line := fmt.Sprintf("%s: %s", m.SenderID, body)
	switch e.State {
	case session.EntrySending:
		line += " (sending)"
	case session.EntryFailed:
		line += fmt.Sprintf(" (failed: %v, /retry to resend)", e.Err)
	}
	if m.ReadByAll {
		line += " (read)"
	}
	return line
}
