package services

import (
	"time"

	"go.uber.org/zap"

	"chatclient/backend"
	"chatclient/config"
	"chatclient/graphql"
)

// Client wires the session, directory, feed and composer around one backend.
type Client struct {
	Backend   backend.ChatBackend
	Tokens    *TokenStore
	Session   *Session
	Directory *Directory
	Feed      *Feed
	Composer  *Composer
}

// NewClient builds the real or mock stack from cfg.
func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	tokens := NewTokenStore(cfg.TokenFile)

	if cfg.Backend == config.BackendMock {
		log.Info("using mock backend")
		return New(backend.NewMock(cfg.MockDelay, log.Named("backend")),
			MockProvider{Delay: cfg.MockDelay}, tokens, cfg.FallbackDelay, log)
	}

	b := backend.NewHasura(
		graphql.NewClient(cfg.GraphQLURL, cfg.Role, tokens, log.Named("graphql")),
		graphql.NewSubscriber(cfg.GraphQLWSURL, cfg.Role, tokens, log.Named("graphql")),
		log.Named("backend"),
	)
	return New(b, NewNhostProvider(cfg.AuthURL), tokens, cfg.FallbackDelay, log)
}

func New(b backend.ChatBackend, provider SessionProvider, tokens *TokenStore, fallbackDelay time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	session := NewSession(provider, tokens, log.Named("session"))
	dir := NewDirectory(b, log.Named("directory"))
	feed := NewFeed(b, log.Named("feed"))
	composer := NewComposer(b, feed, dir, fallbackDelay, log.Named("composer"))

	dir.OnSelect(feed.Switch)

	session.OnSignOut(feed.Close)
	session.OnSignOut(dir.Reset)
	session.OnSignOut(b.Reset)

	return &Client{
		Backend:   b,
		Tokens:    tokens,
		Session:   session,
		Directory: dir,
		Feed:      feed,
		Composer:  composer,
	}
}

// Close stops the live feed.
func (c *Client) Close() {
	c.Feed.Close()
}
