// Package notify sends the periodic notification mail to opted-in users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/go-rakh-weather/logging"
	"github.com/adeilh/go-rakh-weather/users"
)

// UserLister is the slice of users.Service the job needs.
type UserLister interface {
	List(ctx context.Context) ([]users.User, error)
}

// Composer builds the message for one user.
type Composer func(ctx context.Context, user users.User) (Message, error)

// Report summarises one run.
type Report struct {
	Sent    int
	Failed  int
	Skipped int
}

type Job struct {
	users   UserLister
	sender  Sender
	compose Composer
	log     zerolog.Logger
}

func NewJob(lister UserLister, sender Sender, compose Composer, logger zerolog.Logger) (*Job, error) {
	if lister == nil || sender == nil {
		return nil, errors.New("notify: user lister and sender are required")
	}
	if compose == nil {
		compose = DefaultComposer
	}
	return &Job{
		users:   lister,
		sender:  sender,
		compose: compose,
		log:     logging.Component(logger, "notify"),
	}, nil
}

// Run loads every user and mails those with an address who opted in. A
// failure for one user is logged and counted; only loading users or a
// cancelled context aborts the run.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	start := time.Now()

	all, err := j.users.List(ctx)
	if err != nil {
		return report, fmt.Errorf("notify: load users: %w", err)
	}
	for _, u := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if u.Email == "" || !u.SentimentAnalysis {
			report.Skipped++
			continue
		}
		msg, err := j.compose(ctx, u)
		if err == nil {
			msg.To = u.Email
			err = j.sender.Send(ctx, msg)
		}
		if err != nil {
			report.Failed++
			j.log.Warn().Err(err).Str("user_name", u.UserName).Msg("notification not sent")
			continue
		}
		report.Sent++
	}

	j.log.Info().
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("took", time.Since(start)).
		Msg("notification run finished")
	return report, nil
}

// DefaultComposer produces a short weekly digest.
func DefaultComposer(_ context.Context, u users.User) (Message, error) {
	return Message{
		Subject: "Your weekly weather digest",
		Body:    fmt.Sprintf("Hi %s,\n\nHere is your weekly weather digest.\n", u.UserName),
	}, nil
}
