package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campuschat/internal/client"
	"campuschat/internal/realtime"
	"campuschat/internal/user"
)

var (
	baseURL     = flag.String("url", "http://localhost:8080", "server base URL")
	pairCount   = flag.Int("pairs", 50, "number of user pairs (start small, the database may choke on 1000 immediately)")
	msgCount    = flag.Int("messages", 20, "messages each sender posts")
	concurrency = flag.Int("concurrency", 25, "pairs running at once")
	deliverWait = flag.Duration("wait", 10*time.Second, "how long a receiver waits for pushes")
)

type stats struct {
	sent      atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

func main() {
	flag.Parse()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("starting load test", zap.Int("users", *pairCount*2), zap.Int("messages_per_pair", *msgCount))
	api := client.NewAPI(*baseURL, nil)

	var st stats
	started := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)
	for i := 0; i < *pairCount; i++ {
		pairID := i
		g.Go(func() error {
			if err := runPair(ctx, api, logger, pairID, &st); err != nil {
				st.failed.Add(1)
				logger.Warn("pair failed", zap.Int("pair", pairID), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	logger.Info("load test complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int64("sent", st.sent.Load()),
		zap.Int64("delivered", st.delivered.Load()),
		zap.Int64("failed_pairs", st.failed.Load()))
}

// runPair has A message B over REST while B counts the pushes it receives.
func runPair(ctx context.Context, api *client.API, logger *zap.Logger, pairID int, st *stats) error {
	const pass = "password123"
	a, err := authenticate(ctx, api, fmt.Sprintf("u_%d_a", pairID), pass)
	if err != nil {
		return err
	}
	b, err := authenticate(ctx, api, fmt.Sprintf("u_%d_b", pairID), pass)
	if err != nil {
		return err
	}

	if err := connect(ctx, api, a, b); err != nil {
		return err
	}
	chatID, err := api.OpenChat(ctx, a, b.UserID)
	if err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := client.NewSubscriber(*baseURL, b, logger.Named(b.Username))
	if err != nil {
		return err
	}
	if err := sub.JoinChat(chatID); err != nil {
		return fmt.Errorf("join chat: %w", err)
	}
	go sub.Run(subCtx)
	if err := waitJoined(subCtx, sub, realtime.ChatGroup(chatID)); err != nil {
		return err
	}

	received := make(chan int, 1)
	go func() {
		n := 0
		timeout := time.After(*deliverWait)
		for n < *msgCount {
			select {
			case _, ok := <-sub.Events():
				if !ok {
					received <- n
					return
				}
				n++
			case <-timeout:
				received <- n
				return
			}
		}
		received <- n
	}()

	for i := 0; i < *msgCount; i++ {
		if _, err := api.SendMessage(ctx, a, chatID, fmt.Sprintf("LoadTest Msg %d from %s", i, a.Username)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		st.sent.Add(1)
		// Simulate a real network instead of hammering localhost.
		time.Sleep(10 * time.Millisecond)
	}

	n := <-received
	st.delivered.Add(int64(n))
	if n < *msgCount {
		logger.Warn("missing pushes", zap.Int("pair", pairID), zap.Int("got", n), zap.Int("want", *msgCount))
	}
	return nil
}

// authenticate registers (ignores error if exists) and logs in.
func authenticate(ctx context.Context, api *client.API, username, password string) (*client.Session, error) {
	api.Register(ctx, user.RegisterRequest{
		Username: username,
		Email:    username + "@loadtest.local",
		Password: password,
		Name:     username,
	})
	s, err := api.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", username, err)
	}
	return s, nil
}

// connect makes a and b accepted connections, tolerating leftovers from earlier runs.
func connect(ctx context.Context, api *client.API, a, b *client.Session) error {
	if _, err := api.RequestConnection(ctx, a, b.UserID); err != nil {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) {
			return fmt.Errorf("request connection: %w", err)
		}
	}
	pending, err := api.PendingRequests(ctx, b)
	if err != nil {
		return fmt.Errorf("pending: %w", err)
	}
	for _, p := range pending {
		if p.User.ID == a.UserID {
			return api.AcceptConnection(ctx, b, p.ConnectionID)
		}
	}
	return nil
}

// waitJoined blocks until the server acknowledges the group, so no push is sent before it can arrive.
func waitJoined(ctx context.Context, sub *client.Subscriber, group string) error {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case joined := <-sub.Joined():
			if joined == group {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("server did not confirm %s", group)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
