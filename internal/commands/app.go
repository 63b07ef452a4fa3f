package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/bcaldwell/plaidsync/pkg/aggregate"
	"github.com/bcaldwell/plaidsync/pkg/classifier"
	"github.com/bcaldwell/plaidsync/pkg/config"
	"github.com/bcaldwell/plaidsync/pkg/influxexport"
	"github.com/bcaldwell/plaidsync/pkg/postgresutils"
	"github.com/bcaldwell/plaidsync/pkg/provider/plaid"
	"github.com/bcaldwell/plaidsync/pkg/store"
	"github.com/bcaldwell/plaidsync/pkg/syncengine"
)

// app holds everything one command run needs. Close releases the clients it opened.
type app struct {
	conf      *config.Config
	store     store.Store
	engine    *syncengine.Engine
	aggregate *aggregate.Engine
	log       *slog.Logger
	now       func() time.Time

	// nil unless the plaid client is available
	sandboxToken       func(ctx context.Context, institutionID string) (string, error)
	fireSandboxWebhook func(ctx context.Context, accessToken string) (bool, error)
	linkToken          func(ctx context.Context, userID string) (*plaid.LinkTokenCreateResponse, error)

	newClassifier func(ctx context.Context) (classifier.Classifier, error)
	newExporter   func() (*influxexport.Exporter, error)
	exporterMu    sync.Mutex
	exporter      *influxexport.Exporter

	closers []func() error
}

const plaidMaxRetries = 2

type migrator interface {
	Migrate(ctx context.Context) error
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	conf, secrets, err := config.Load(opts.configEnv, opts.configFile, opts.secretsFile, opts.envFile)
	if err != nil {
		return nil, err
	}

	a := &app{conf: conf, log: slog.Default(), now: time.Now}

	db, err := postgresutils.CreatePostgresClient(secrets, conf.SQL.Database)
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a.store = store.NewPostgresStore(db)

	client, err := plaid.NewClient(plaid.ClientConfig{
		Environment: conf.Plaid.Environment,
		ClientID:    secrets.Plaid.ClientID,
		Secret:      secrets.Plaid.Secret,
		Timeout:     conf.Sync.Timeout(),
		PageSize:    conf.Plaid.PageSize,
		MaxRetries:  plaidMaxRetries,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create plaid client: %w", err)
	}

	a.sandboxToken = func(ctx context.Context, institutionID string) (string, error) {
		resp, err := client.CreateSandboxPublicToken(ctx, institutionID)
		if err != nil {
			return "", err
		}
		return resp.PublicToken, nil
	}
	a.fireSandboxWebhook = client.FireSandboxWebhook
	a.linkToken = func(ctx context.Context, userID string) (*plaid.LinkTokenCreateResponse, error) {
		return client.CreateLinkToken(ctx, userID, conf.Plaid.ClientName, conf.Plaid.CountryCodes)
	}

	a.engine = syncengine.New(a.store, plaid.NewProvider(client), syncengine.Config{
		InitialWindowDays:     conf.Sync.InitialWindowDays,
		ProviderTimeout:       conf.Sync.Timeout(),
		MaxConcurrentAccounts: conf.Sync.MaxConcurrentAccounts,
		Logger:                a.log,
	})
	a.aggregate = aggregate.NewEngine(a.store)

	a.newClassifier = func(ctx context.Context) (classifier.Classifier, error) {
		return newClassifier(ctx, conf.Classifier, secrets.Gemini)
	}

	a.newExporter = func() (*influxexport.Exporter, error) {
		c, err := influxexport.CreateInfluxClient(secrets.Influx)
		if err != nil {
			return nil, fmt.Errorf("failed to create influx client: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		return influxexport.NewExporter(c, conf.Influx.Database, conf.Influx.Measurement), nil
	}

	return a, nil
}

// newClassifier builds the configured backend. The gemini backend is constrained to the
// labels of the rule table.
func newClassifier(ctx context.Context, conf config.ClassifierConfig, secrets config.GeminiSecrets) (classifier.Classifier, error) {
	rules := make([]classifier.Rule, 0, len(conf.Rules))
	for _, r := range conf.Rules {
		rules = append(rules, classifier.Rule{Label: r.Label, Keywords: r.Keywords})
	}
	rc := classifier.NewRuleClassifier(rules, conf.Fallback)

	switch conf.Backend {
	case "", "rules":
		return rc, nil
	case "gemini":
		if secrets.APIKey == "" {
			return nil, errors.New("classifier backend gemini requires GEMINI_API_KEY")
		}
		return classifier.NewGeminiClassifier(ctx, secrets.APIKey, conf.Model, rc.Labels())
	}

	return nil, fmt.Errorf("unknown classifier backend %q", conf.Backend)
}

// influx returns the exporter, creating the target database on first use.
func (a *app) influx() (*influxexport.Exporter, error) {
	a.exporterMu.Lock()
	defer a.exporterMu.Unlock()

	if a.exporter != nil {
		return a.exporter, nil
	}

	e, err := a.newExporter()
	if err != nil {
		return nil, err
	}
	if err := e.EnsureDatabase(); err != nil {
		return nil, err
	}

	a.exporter = e
	return e, nil
}

func (a *app) today() civil.Date {
	return civil.DateOf(a.now())
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
