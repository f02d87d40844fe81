package cmd

import (
	"net/http"

	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/notes"
	"github.com/gobeyondidentity/podnotes/pkg/retry"
	"github.com/gobeyondidentity/podnotes/pkg/session"
)

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.HTTP.Timeout}
}

func (a *app) credentials() account.Credentials {
	return account.Credentials{
		Username:   a.cfg.Account.Username,
		Password:   a.cfg.Account.Password,
		AccountURL: a.cfg.Account.URL,
		PodURL:     a.cfg.Pod.URL,
	}
}

func (a *app) authenticator() *account.Authenticator {
	opts := []account.Option{
		account.WithHTTPClient(a.httpClient()),
		account.WithLogger(a.logger),
	}
	if a.cfg.Pod.TokenURL != "" {
		opts = append(opts, account.WithTokenURL(a.cfg.Pod.TokenURL))
	}
	return account.New(a.credentials(), opts...)
}

func (a *app) notesClient() *notes.Client {
	return notes.New(a.cfg.Pod.URL,
		notes.WithHTTPClient(a.httpClient()),
		notes.WithContainer(a.cfg.Pod.Container),
		notes.WithDeleteStatuses(a.cfg.Pod.DeleteStatuses...),
		notes.WithWriteStatuses(a.cfg.Pod.WriteStatuses...),
		notes.WithConcurrency(a.cfg.List.Concurrency),
		notes.WithLogger(a.logger),
	)
}

func (a *app) session() *session.Session {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.cfg.Retry.MaxAttempts
	rc.InitialDelay = a.cfg.Retry.InitialDelay

	opts := []session.Option{
		session.WithSkew(a.cfg.Session.Skew),
		session.WithRetry(rc),
		session.WithLogger(a.logger),
	}
	if !a.cfg.Session.Cache {
		opts = append(opts, session.WithoutCache())
	}
	return session.New(a.authenticator(), a.notesClient(), opts...)
}
