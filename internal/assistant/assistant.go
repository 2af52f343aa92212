package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bizbot-backend/internal/logger"
	"bizbot-backend/internal/metrics"
	"bizbot-backend/internal/store"
)

const tracerName = "bizbot-backend/internal/assistant"

// Store persists records and runs synthesized read queries.
type Store interface {
	InsertInventory(ctx context.Context, rec store.InventoryRecord) (int64, error)
	InsertCashflow(ctx context.Context, rec store.CashflowRecord) (int64, error)
	ExecuteReadOnly(ctx context.Context, query string) (*store.QueryResult, error)
}

// SchemaSource lists the tables the query prompts may use.
type SchemaSource interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) (string, error)
}

type UserDirectory interface {
	GetOrCreateUser(ctx context.Context, phone, name string) (*store.User, bool, error)
}

type Deps struct {
	Oracle  Oracle
	Prompts Prompts
	Store   Store
	Schema  SchemaSource
	Users   UserDirectory
	Logger  *zap.Logger
	Tracer  trace.Tracer
	Now     func() time.Time
}

type Assistant struct {
	oracle  Oracle
	prompts Prompts
	store   Store
	schema  SchemaSource
	users   UserDirectory
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func New(d Deps) (*Assistant, error) {
	if d.Oracle == nil || d.Store == nil || d.Schema == nil || d.Users == nil {
		return nil, errors.New("assistant: oracle, store, schema and users are required")
	}
	if d.Prompts == nil {
		d.Prompts = DefaultPrompts()
	}
	if err := d.Prompts.validate(); err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(tracerName)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Assistant{
		oracle:  d.Oracle,
		prompts: d.Prompts,
		store:   d.Store,
		schema:  d.Schema,
		users:   d.Users,
		logger:  d.Logger,
		tracer:  d.Tracer,
		now:     d.Now,
	}, nil
}

// Handle runs one message from a known user through classification and the
// matching handler.
func (a *Assistant) Handle(ctx context.Context, message string, userID int64) (Reply, error) {
	ctx, span := a.tracer.Start(ctx, "assistant.Handle", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()
	start := time.Now()

	routed, err := a.Classify(ctx, message)
	if err != nil {
		return Reply{}, a.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.String("category", string(routed.Category)))
	metrics.MessagesRouted.WithLabelValues(string(routed.Category)).Inc()
	a.log(ctx).Info("message routed", zap.String("category", string(routed.Category)))

	reply, err := a.dispatch(ctx, routed, userID)
	metrics.PipelineDuration.WithLabelValues(string(routed.Category)).Observe(time.Since(start).Seconds())
	if err != nil {
		return Reply{}, a.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.String("reply.kind", string(reply.Kind)))
	return reply, nil
}

// Inbound is a message as it arrives from the channel.
type Inbound struct {
	Phone string
	Name  string
	Text  string
}

const fallbackText = "Sorry, I couldn't understand that. Try something like 'add 5 apples at $2 each'."

// FallbackReply is sent when a message could not be handled.
func FallbackReply() Reply { return TextReply(fallbackText) }

// HandleInbound greets unknown contacts without routing their first message
// and runs everything else through Handle. A failed message still yields the
// fallback reply alongside the error.
func (a *Assistant) HandleInbound(ctx context.Context, in Inbound) (Reply, error) {
	ctx, span := a.tracer.Start(ctx, "assistant.HandleInbound")
	defer span.End()

	user, created, err := a.users.GetOrCreateUser(ctx, in.Phone, in.Name)
	if err != nil {
		err = fmt.Errorf("%w: user lookup: %v", ErrPersistence, err)
		return TextReply(fallbackText), a.fail(ctx, span, err)
	}
	ctx = logger.WithContext(ctx, a.log(ctx).With(zap.Int64("user_id", user.ID)))
	if created {
		metrics.UsersOnboarded.Inc()
		a.log(ctx).Info("new user onboarded")
		span.SetAttributes(attribute.Bool("user.created", true))
		return TextReply(welcomeNewUser(user.UserName)), nil
	}

	reply, err := a.Handle(ctx, in.Text, user.ID)
	if err != nil {
		return TextReply(fallbackText), err
	}
	return reply, nil
}

func welcomeNewUser(name string) string {
	return strings.Join([]string{
		fmt.Sprintf("Welcome %s! 👋", name),
		"",
		"I'm your business assistant. Here's how you can use me:",
		"",
		"1️⃣ Add inventory: 'add 5 apples at $2 each'",
		"2️⃣ Record income: 'received $100 from sales'",
		"3️⃣ Record expense: 'spent $50 on supplies'",
		"4️⃣ Get reports: 'show me today's sales'",
		"5️⃣ View graphs: 'show sales graph for last week'",
		"",
		"Let's start by adding your first inventory item! 📦",
	}, "\n")
}

// complete renders the named prompt, calls the oracle and decodes the answer
// into out after schema validation.
func (a *Assistant) complete(ctx context.Context, name string, vars map[string]string, schema map[string]any, out any) error {
	prompt, err := a.prompts.Get(name)
	if err != nil {
		return err
	}
	ctx, span := a.tracer.Start(ctx, "oracle."+name)
	defer span.End()

	start := time.Now()
	raw, err := a.oracle.Complete(ctx, prompt, vars)
	metrics.OracleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := decodeOutput(raw, schema, out); err != nil {
		a.log(ctx).Debug("oracle output rejected", zap.String("prompt", name), zap.ByteString("raw", raw), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// wrapOutput tags a failed oracle round trip with kind unless the oracle
// itself failed.
func wrapOutput(kind error, op string, err error) error {
	if errors.Is(err, ErrOracle) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}

func (a *Assistant) fail(ctx context.Context, span trace.Span, err error) error {
	kind := ErrorKind(err)
	metrics.PipelineFailures.WithLabelValues(kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	a.log(ctx).Warn("message failed", zap.String("kind", kind), zap.Error(err))
	return err
}

// log prefers the request scoped logger carried by ctx.
func (a *Assistant) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, a.logger)
}
