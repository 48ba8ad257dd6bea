package notify

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/go-rakh-weather/users"
)

type staticLister struct {
	users []users.User
	err   error
}

func (l staticLister) List(context.Context) ([]users.User, error) { return l.users, l.err }

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func sampleUsers() []users.User {
	return []users.User{
		{UserName: "ana", Email: "ana@example.com", SentimentAnalysis: true},
		{UserName: "bo", Email: "bo@example.com", SentimentAnalysis: false},
		{UserName: "cy", SentimentAnalysis: true},
		{UserName: "di", Email: "di@example.com", SentimentAnalysis: true},
	}
}

func TestJobSendsOnlyToOptedInUsersWithEmail(t *testing.T) {
	sender := &recordingSender{}
	job, err := NewJob(staticLister{users: sampleUsers()}, sender, nil, zerolog.Nop())
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Sent: 2, Skipped: 2}, report)
	require.Len(t, sender.sent, 2)
	require.Equal(t, "ana@example.com", sender.sent[0].To)
	require.Contains(t, sender.sent[0].Body, "ana")
	require.Equal(t, "di@example.com", sender.sent[1].To)
}

func TestJobCountsFailuresAndContinues(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{"ana@example.com": errors.New("relay down")}}
	job, err := NewJob(staticLister{users: sampleUsers()}, sender, nil, zerolog.Nop())
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Sent: 1, Failed: 1, Skipped: 2}, report)
}

func TestJobComposerErrorCountsAsFailure(t *testing.T) {
	sender := &recordingSender{}
	compose := func(_ context.Context, u users.User) (Message, error) {
		if u.UserName == "di" {
			return Message{}, errors.New("no digest")
		}
		return Message{Subject: "s", Body: "b"}, nil
	}
	job, err := NewJob(staticLister{users: sampleUsers()}, sender, compose, zerolog.Nop())
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent)
	require.Equal(t, 1, report.Failed)
}

func TestJobAbortsWhenUsersCannotBeLoaded(t *testing.T) {
	boom := errors.New("db down")
	job, err := NewJob(staticLister{err: boom}, &recordingSender{}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestJobStopsOnCancelledContext(t *testing.T) {
	sender := &recordingSender{}
	job, err := NewJob(staticLister{users: sampleUsers()}, sender, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, sender.count())
}

func TestNewJobRequiresDependencies(t *testing.T) {
	_, err := NewJob(nil, &recordingSender{}, nil, zerolog.Nop())
	require.Error(t, err)
	_, err = NewJob(staticLister{}, nil, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestSMTPSenderFormatsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	s := NewSMTPSender("mail.local:1025", "noreply@example.com", "", "")
	s.send = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hi", Body: "line1\nline2"})
	require.NoError(t, err)
	require.Equal(t, "mail.local:1025", gotAddr)
	require.Equal(t, "noreply@example.com", gotFrom)
	require.Equal(t, []string{"ana@example.com"}, gotTo)
	require.True(t, strings.HasPrefix(string(gotMsg), "From: noreply@example.com\r\n"))
	require.Contains(t, string(gotMsg), "Subject: Hi\r\n")
	require.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\nline1\r\nline2"))
	require.Nil(t, s.Auth)
}

func TestSMTPSenderWrapsErrors(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewSMTPSender("mail.local:25", "noreply@example.com", "user", "pass")
	require.NotNil(t, s.Auth)
	s.send = func(context.Context, string, smtp.Auth, string, []string, []byte) error { return boom }

	err := s.Send(context.Background(), Message{To: "ana@example.com"})
	require.ErrorIs(t, err, boom)

	err = s.Send(context.Background(), Message{})
	require.Error(t, err)
}

// fakeRelay speaks just enough SMTP to accept one message and hands the
// received DATA section to the returned channel.
func fakeRelay(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 relay ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				_ = tp.PrintfLine("250 relay")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				_ = tp.PrintfLine("250 ok")
			case cmd == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(body)
				_ = tp.PrintfLine("250 queued")
			case cmd == "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestSMTPSenderDeliversToRelay(t *testing.T) {
	addr, got := fakeRelay(t)
	s := NewSMTPSender(addr, "noreply@example.com", "", "")

	err := s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hi", Body: "hello"})
	require.NoError(t, err)
	select {
	case body := <-got:
		require.Contains(t, body, "Subject: Hi\n")
		require.Contains(t, body, "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("relay received no message")
	}
}

func TestSMTPSenderGivesUpOnStalledRelay(t *testing.T) {
	// accepts connections but never greets
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	s := NewSMTPSender(ln.Addr().String(), "noreply@example.com", "", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Send(ctx, Message{To: "ana@example.com", Subject: "Hi"})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPSenderTimeoutBoundsSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	s := NewSMTPSender(ln.Addr().String(), "noreply@example.com", "", "")
	s.Timeout = 100 * time.Millisecond

	start := time.Now()
	err = s.Send(context.Background(), Message{To: "ana@example.com"})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestLogSenderWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: zerolog.New(&buf)}
	require.NoError(t, s.Send(context.Background(), Message{To: "ana@example.com", Subject: "Hi", Body: "hello"}))
	require.Contains(t, buf.String(), `"to":"ana@example.com"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	job, err := NewJob(staticLister{}, &recordingSender{}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = NewScheduler("not a schedule", job, time.Second, zerolog.Nop())
	require.Error(t, err)
}

func TestSchedulerRunsJob(t *testing.T) {
	sender := &recordingSender{}
	job, err := NewJob(staticLister{users: sampleUsers()}, sender, nil, zerolog.Nop())
	require.NoError(t, err)

	s, err := NewScheduler("* * * * * *", job, time.Second, zerolog.Nop())
	require.NoError(t, err)
	s.Start(context.Background())
	require.False(t, s.Next().IsZero())

	require.Eventually(t, func() bool { return sender.count() >= 2 }, 3*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}

func TestDefaultScheduleParses(t *testing.T) {
	job, err := NewJob(staticLister{}, &recordingSender{}, nil, zerolog.Nop())
	require.NoError(t, err)

	s, err := NewScheduler("", job, 0, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, s.timeout)
}
